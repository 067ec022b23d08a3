// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"sync/atomic"

	"krpc.io/log"
)

// NewLogSaver returns a Saver that writes every metric to the debug log.
func NewLogSaver() *LogSaver {
	return &LogSaver{}
}

// LogSaver writes metrics to the debug log.
type LogSaver struct {
	processed int32
}

// Register implements Saver.
func (s *LogSaver) Register(queue chan *Metric) {
	go func() {
		for metric := range queue {
			if metric == nil {
				continue
			}
			log.Debug.Println(metric)
			atomic.AddInt32(&s.processed, 1)
		}
	}()
}

// NumProcessed returns the number of metrics written so far.
func (s *LogSaver) NumProcessed() int32 {
	return atomic.LoadInt32(&s.processed)
}
