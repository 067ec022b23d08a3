// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package serverutil

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// RateCounter counts events per unit of time, averaged over a rolling
// window of samples. It implements expvar.Var, so it may be published
// to report, for instance, requests per second.
type RateCounter struct {
	samples []int64 // running counts; must be used atomically.
	b       int32   // current bucket; must be used atomically.
	d       time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateCounter returns a counter averaging over the given number of
// samples, each lasting d. For example, requests per second over the
// last minute is NewRateCounter(60, time.Second). Stop releases it.
func NewRateCounter(samples int, d time.Duration) *RateCounter {
	t := time.NewTicker(d)
	r := newRateCounter(samples, d, t.C)
	go func() {
		<-r.stop
		t.Stop()
	}()
	return r
}

// onAdvance is called when the counter has moved to a new sample.
// Used in testing.
var onAdvance = func() {}

func newRateCounter(samples int, d time.Duration, tick <-chan time.Time) *RateCounter {
	if samples <= 0 {
		panic(fmt.Sprintf("serverutil: %d samples, must be >0", samples))
	}
	r := &RateCounter{
		samples: make([]int64, samples),
		d:       d,
		stop:    make(chan struct{}),
	}
	go r.loop(tick)
	return r
}

// Add adds val to the current sample.
func (r *RateCounter) Add(val int64) {
	b := atomic.LoadInt32(&r.b)
	atomic.AddInt64(&r.samples[b%int32(len(r.samples))], val)
}

// Rate returns the mean count per sample.
func (r *RateCounter) Rate() float64 {
	var sum float64
	for i := range r.samples {
		sum += float64(atomic.LoadInt64(&r.samples[i]))
	}
	return sum / float64(len(r.samples))
}

// String implements expvar.Var.
func (r *RateCounter) String() string {
	return fmt.Sprintf(`"%g ops/s"`, r.Rate()/r.d.Seconds())
}

// Stop stops the counter from advancing. It may be called more than once.
func (r *RateCounter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *RateCounter) loop(tick <-chan time.Time) {
	for {
		select {
		case <-r.stop:
			return
		case <-tick:
		}
		// Move to the next sample and zero it.
		b := atomic.AddInt32(&r.b, 1)
		atomic.StoreInt64(&r.samples[b%int32(len(r.samples))], 0)
		onAdvance()
	}
}

// CountRequests returns a handler that counts each request in r
// before passing it to h.
func CountRequests(h http.Handler, r *RateCounter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.Add(1)
		h.ServeHTTP(w, req)
	})
}
