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

package batch

import (
	"log"
	"time"

	"github.com/dnsflow/dnsflow/internal/wire"
)

// Sender hands a completed, sequence-numbered wire record off to the
// next stage (normally internal/emit.Emitter.Send).
type Sender interface {
	Send(record []byte)
}

// Batcher implements spec §4.3: it accumulates DataSets into a
// wire.FlowBuffer and flushes on size, count, or a time tick.
type Batcher struct {
	fb        *wire.FlowBuffer
	sender    Sender
	logger    *log.Logger
	seq       uint32
	lastFlush time.Time
	now       func() time.Time
}

// New constructs a Batcher with a fresh FlowBuffer. The sequence
// counter starts at 1, matching the wire format's expectation that 0
// never appears as a live sequence number.
func New(sender Sender, logger *log.Logger) *Batcher {
	return &Batcher{
		fb:     wire.NewFlowBuffer(),
		sender: sender,
		logger: logger,
		seq:    1,
		now:    time.Now,
	}
}

// Append adds one DataSet. A set that would overflow the buffer's
// fixed capacity causes the whole buffer to be discarded without
// emission — the only place a buffer is ever abandoned instead of
// flushed.
func (b *Batcher) Append(clientIP [4]byte, names [][]byte, ips [][4]byte) {
	if err := b.fb.AppendDataSet(clientIP, names, ips); err != nil {
		b.logger.Printf("batch: buffer overflow, discarding %d pending bytes: %v", b.fb.Len(), err)
		b.fb.Reset()
		return
	}
	if b.fb.Len() >= wire.TargetFlushSize || int(b.fb.SetsCount()) == wire.MaxSetsCount {
		b.Flush()
	}
}

// Flush patches the sequence number, hands the buffer to the sender,
// and resets. A no-op on an idle buffer.
func (b *Batcher) Flush() {
	if !b.fb.Active() {
		return
	}
	b.fb.PatchSequenceNumber(b.seq)
	b.seq++
	b.sender.Send(b.fb.Bytes())
	b.fb.Reset()
	b.lastFlush = b.now()
}

// Tick flushes if at least one second has passed since the last
// flush. The worker's push timer calls this on every rearm.
func (b *Batcher) Tick(now time.Time) {
	if now.Sub(b.lastFlush) >= time.Second {
		b.Flush()
	}
}

// NextSequenceNumber returns the value the next Flush will write,
// without consuming it. The stats ticker shares this counter.
func (b *Batcher) NextSequenceNumber() uint32 { return b.seq }

// AdvanceSequenceNumber consumes the next sequence number for a
// record built outside this Batcher's FlowBuffer (a stats buffer,
// which uses its own dedicated FlowBuffer so it never competes with
// in-progress data sets).
func (b *Batcher) AdvanceSequenceNumber() uint32 {
	seq := b.seq
	b.seq++
	return seq
}
