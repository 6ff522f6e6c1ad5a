// Copyright 2024 The dnsflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package worker

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/dnsflow/dnsflow/internal/batch"
	"github.com/dnsflow/dnsflow/internal/capture"
	"github.com/dnsflow/dnsflow/internal/ddltimer"
	"github.com/dnsflow/dnsflow/internal/decap"
	"github.com/dnsflow/dnsflow/internal/dnsmsg"
	"github.com/dnsflow/dnsflow/internal/wire"
)

// pushInterval and statsInterval are the base intervals of
// original_source/dnsflow.c's push_tv and stats_tv; both are rearmed
// with up to one extra second of jitter on every fire (jitter_tv).
const (
	pushInterval     = time.Second
	statsInterval    = 10 * time.Second
	jitterWindow     = time.Second
	statsLogInterval = 6 // print counters to the log every 6th stats tick
)

// Worker runs one capture-to-emit pipeline. It is not safe for
// concurrent use; spec.md §5 assigns exactly one OS process (or, for
// tests, one goroutine) per Worker.
type Worker struct {
	logger *log.Logger

	source  capture.Source
	encap   decap.Encap
	emitter batch.Sender
	batcher *batch.Batcher

	statsBuf       *wire.FlowBuffer
	statsTickCount int

	rng *rand.Rand
}

// New constructs a Worker. source must already have its BPF filter
// installed (internal/pcapfilter.Build, via cmd/dnsflow) and its
// sample rate configured. seed should be distinct
// per sibling worker (original_source/dnsflow.c reseeds jitter from
// getpid() for exactly this reason).
func New(logger *log.Logger, source capture.Source, encap decap.Encap, emitter batch.Sender, seed int64) *Worker {
	return &Worker{
		logger:   logger,
		source:   source,
		encap:    encap,
		emitter:  emitter,
		batcher:  batch.New(emitter, logger),
		statsBuf: wire.NewFlowBuffer(),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

type capturedPacket struct {
	ts    time.Time
	frame []byte
}

// RunLive drives the worker against a live (or otherwise continuous)
// capture source until ctx is canceled or the source returns a fatal
// read error. It runs the push timer and the stats timer; RunFile does
// not.
func (w *Worker) RunLive(ctx context.Context) error {
	packets := make(chan capturedPacket)
	readErr := make(chan error, 1)
	go w.readLoop(packets, readErr)

	pushTimer := ddltimer.New()
	defer pushTimer.Stop()
	pushTimer.RearmJittered(pushInterval, jitterWindow, w.rng)

	statsTimer := ddltimer.New()
	defer statsTimer.Stop()
	statsTimer.RearmJittered(statsInterval, jitterWindow, w.rng)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-packets:
			w.handlePacket(p.ts, p.frame)
		case err := <-readErr:
			return err
		case <-pushTimer.Timeout():
			w.batcher.Tick(time.Now())
			pushTimer.RearmJittered(pushInterval, jitterWindow, w.rng)
		case <-statsTimer.Timeout():
			w.emitStats()
			statsTimer.RearmJittered(statsInterval, jitterWindow, w.rng)
		}
	}
}

// RunFile drives the worker against an offline capture file to EOF,
// then flushes whatever is pending and returns. Per the §6 supplement,
// one-shot file mode never starts a stats ticker: there is no live
// kernel counter to sample and no ongoing run to report on.
func (w *Worker) RunFile(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, ts, err := w.source.Next()
		if err != nil {
			if errors.Is(err, pcap.ErrNoMoreRecord) {
				break
			}
			return err
		}
		w.handlePacket(ts, frame)
	}
	w.batcher.Flush()
	return nil
}

func (w *Worker) readLoop(packets chan<- capturedPacket, errc chan<- error) {
	for {
		frame, ts, err := w.source.Next()
		if err != nil {
			errc <- err
			return
		}
		packets <- capturedPacket{ts: ts, frame: frame}
	}
}

func (w *Worker) handlePacket(ts time.Time, frame []byte) {
	res, ok := decap.Decapsulate(frame, w.encap)
	if !ok {
		return
	}
	resp, ok, err := dnsmsg.Decode(w.logger, res.DNSPayloadBytes, res.ClientIP)
	if err != nil {
		w.logger.Printf("dns: %v", err)
		return
	}
	if !ok {
		return
	}
	w.batcher.Append(resp.ClientIP, resp.Names, resp.IPs)
}

// emitStats builds and sends one StatsSet record, sharing the
// batcher's sequence counter (spec.md §4.7: "Sequence numbers for
// stats and data buffers share the same counter").
func (w *Worker) emitStats() {
	s := w.source.Stats()
	set := wire.StatsSet{
		PktsCaptured:  s.Captured,
		PktsReceived:  s.Received,
		PktsDropped:   s.Dropped,
		PktsIfDropped: s.IfDropped,
		SampleRate:    uint32(w.source.SampleRate()),
	}
	w.statsBuf.WriteStatsSet(set)
	w.statsBuf.PatchSequenceNumber(w.batcher.AdvanceSequenceNumber())
	w.emitter.Send(w.statsBuf.Bytes())
	w.statsBuf.Reset()

	w.statsTickCount++
	if w.statsTickCount%statsLogInterval == 0 {
		w.logStats(s)
	}
}

func (w *Worker) logStats(s capture.Stats) {
	w.logger.Printf("%d packets captured", s.Captured)
	if s.Valid {
		w.logger.Printf("%d packets received by filter", s.Received)
		w.logger.Printf("%d packets dropped by kernel", s.Dropped)
		w.logger.Printf("%d packets dropped by interface", s.IfDropped)
	}
}

// Shutdown logs final counters and releases the worker's capture
// handle and the emitter's UDP socket. It does not close the dump
// file, which the caller owns, and any data still sitting in the
// batcher's FlowBuffer is dropped, not forced out.
func (w *Worker) Shutdown() {
	w.logger.Printf("shutting down")
	w.logStats(w.source.Stats())
	if closer, ok := w.emitter.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			w.logger.Printf("emit: close: %v", err)
		}
	}
	w.source.Close()
}
