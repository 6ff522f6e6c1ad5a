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
	"log"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/stretchr/testify/require"

	"github.com/dnsflow/dnsflow/internal/capture"
	"github.com/dnsflow/dnsflow/internal/decap"
	"github.com/dnsflow/dnsflow/internal/wire"
)

var testLogger = log.New(os.Stderr, "worker_test: ", 0)

type fakeSender struct {
	mu      sync.Mutex
	records [][]byte
}

func (f *fakeSender) Send(record []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(record))
	copy(cp, record)
	f.records = append(f.records, cp)
}

func (f *fakeSender) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.records))
	copy(out, f.records)
	return out
}

// fakeSource implements capture.Source over a fixed list of frames. In
// blockOnEOF mode it mimics a live pcap handle: Next blocks past the
// last frame until Close is called, rather than returning EOF, so
// callers can't observe a spurious error racing a context cancel. In
// non-blocking mode it returns pcap.ErrNoMoreRecord once exhausted,
// matching an offline file.
type fakeSource struct {
	frames     [][]byte
	i          int
	stats      capture.Stats
	rate       uint16
	blockOnEOF bool
	closed     chan struct{}
}

func newFakeSource(frames [][]byte, blockOnEOF bool) *fakeSource {
	return &fakeSource{frames: frames, blockOnEOF: blockOnEOF, closed: make(chan struct{})}
}

func (f *fakeSource) Next() ([]byte, time.Time, error) {
	if f.i < len(f.frames) {
		frame := f.frames[f.i]
		f.i++
		return frame, time.Now(), nil
	}
	if f.blockOnEOF {
		<-f.closed
	}
	return nil, time.Time{}, pcap.ErrNoMoreRecord
}

func (f *fakeSource) SetBPFFilter(string) error { return nil }
func (f *fakeSource) Stats() capture.Stats      { return f.stats }
func (f *fakeSource) SetSampleRate(n uint16)    { f.rate = n }
func (f *fakeSource) SampleRate() uint16        { return f.rate }

func (f *fakeSource) Close() {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
}

func dnsResponseFrame(t *testing.T, clientIP net.IP, name string, answer net.IP) []byte {
	t.Helper()
	dns := layers.DNS{
		QR: true, RD: true, RA: true,
		QDCount: 1, ANCount: 1,
		Questions: []layers.DNSQuestion{
			{Name: []byte(name), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
		Answers: []layers.DNSResourceRecord{
			{Name: []byte(name), Type: layers.DNSTypeA, Class: layers.DNSClassIN, TTL: 300, IP: answer},
		},
	}
	dnsBuf := gopacket.NewSerializeBuffer()
	require.NoError(t, dns.SerializeTo(dnsBuf, gopacket.SerializeOptions{}))

	ip := layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: net.IPv4(8, 8, 8, 8), DstIP: clientIP}
	udp := layers.UDP{SrcPort: 53, DstPort: 40000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &ip, &udp, gopacket.Payload(dnsBuf.Bytes())))
	return buf.Bytes()
}

func TestRunFileFlushesOnEOF(t *testing.T) {
	frame := dnsResponseFrame(t, net.IPv4(10, 0, 0, 7), "example.com", net.IPv4(93, 184, 216, 34))
	src := newFakeSource([][]byte{frame}, false)
	sender := &fakeSender{}
	w := New(testLogger, src, decap.Encap{}, sender, 1)

	require.NoError(t, w.RunFile(context.Background()))

	records := sender.snapshot()
	require.Len(t, records, 1)
	hdr, err := wire.ParseHeader(records[0])
	require.NoError(t, err)
	require.Equal(t, uint8(2), hdr.Version)
	require.Equal(t, uint8(1), hdr.SetsCount)
	require.EqualValues(t, 1, hdr.SequenceNumber)
}

func TestRunFileNoPacketsEmitsNothing(t *testing.T) {
	src := newFakeSource(nil, false)
	sender := &fakeSender{}
	w := New(testLogger, src, decap.Encap{}, sender, 1)

	require.NoError(t, w.RunFile(context.Background()))
	require.Empty(t, sender.snapshot())
}

func TestRunLiveStopsOnContextCancel(t *testing.T) {
	src := newFakeSource(nil, true)
	sender := &fakeSender{}
	w := New(testLogger, src, decap.Encap{}, sender, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunLive(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunLive did not return after context cancel")
	}
	src.Close()
}

func TestSequenceNumberSharedBetweenDataAndStats(t *testing.T) {
	frame := dnsResponseFrame(t, net.IPv4(10, 0, 0, 7), "example.com", net.IPv4(93, 184, 216, 34))
	src := newFakeSource([][]byte{frame}, false)
	src.stats = capture.Stats{Captured: 10, Valid: true}
	sender := &fakeSender{}
	w := New(testLogger, src, decap.Encap{}, sender, 1)

	require.NoError(t, w.RunFile(context.Background()))
	w.emitStats()

	records := sender.snapshot()
	require.Len(t, records, 2)
	dataHdr, err := wire.ParseHeader(records[0])
	require.NoError(t, err)
	statsHdr, err := wire.ParseHeader(records[1])
	require.NoError(t, err)
	require.True(t, statsHdr.IsStats())
	require.Greater(t, statsHdr.SequenceNumber, dataHdr.SequenceNumber)
}
