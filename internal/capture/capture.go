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

package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

const snapLen = 65535

// Stats mirrors the capture adapter contract's get_stats result.
// Valid is false when the underlying source cannot report kernel
// counters (true of every offline file source).
type Stats struct {
	Captured  uint32
	Received  uint32
	Dropped   uint32
	IfDropped uint32
	Valid     bool
}

// Source is the capture adapter contract: open, filter, read packets
// one at a time, and report counters. A worker owns exactly one
// Source for its lifetime.
type Source interface {
	// Next returns the next accepted packet's L3 bytes (the capture
	// link-layer header, if any, already stripped) and its capture
	// timestamp. It returns pcap.ErrNoMoreRecord once an offline file
	// is exhausted.
	Next() ([]byte, time.Time, error)
	SetBPFFilter(expr string) error
	Stats() Stats
	// SetSampleRate configures 1-in-N downsampling of accepted
	// packets; n<=1 disables sampling.
	SetSampleRate(n uint16)
	SampleRate() uint16
	Close()
}

// Capture wraps a *pcap.Handle to implement Source.
type Capture struct {
	handle     *pcap.Handle
	live       bool
	sampleRate uint16
	seen       uint64
	linkHdrLen int
}

// OpenLive opens iface for live capture in promiscuous mode unless
// promisc is false.
func OpenLive(iface string, promisc bool) (*Capture, error) {
	h, err := pcap.OpenLive(iface, snapLen, promisc, pcap.BlockForever)
	if err != nil {
		return nil, err
	}
	hdrLen, ok := linkLayerHeaderLen(h.LinkType())
	if !ok {
		h.Close()
		return nil, fmt.Errorf("capture: unsupported link type %v on %s", h.LinkType(), iface)
	}
	return &Capture{handle: h, live: true, linkHdrLen: hdrLen}, nil
}

// OpenFile opens path for one-shot offline reading.
func OpenFile(path string) (*Capture, error) {
	h, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, err
	}
	hdrLen, ok := linkLayerHeaderLen(h.LinkType())
	if !ok {
		h.Close()
		return nil, fmt.Errorf("capture: unsupported link type %v in %s", h.LinkType(), path)
	}
	return &Capture{handle: h, live: false, linkHdrLen: hdrLen}, nil
}

// linkLayerHeaderLen returns the fixed number of bytes the capture
// link-layer header occupies ahead of the L3 (IPv4) bytes, for the
// link types this program expects to see on a BPF-filterable
// interface or a pcap file written by one. VLAN tagging is handled by
// internal/pcapfilter's "(P) or (vlan and P)" wrapping, not here, so
// it does not change the Ethernet header length.
func linkLayerHeaderLen(lt layers.LinkType) (int, bool) {
	switch lt {
	case layers.LinkTypeEthernet:
		return 14, true
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return 4, true
	case layers.LinkTypeRaw:
		return 0, true
	case layers.LinkTypeLinuxSLL:
		return 16, true
	default:
		return 0, false
	}
}

func (c *Capture) SetBPFFilter(expr string) error {
	return c.handle.SetBPFFilter(expr)
}

func (c *Capture) SetSampleRate(n uint16) { c.sampleRate = n }
func (c *Capture) SampleRate() uint16     { return c.sampleRate }

// Next returns the next packet that survives sampling, with its
// link-layer header stripped so the returned bytes start at the IPv4
// header. Packets dropped by SetSampleRate are still read off the
// handle (and so still count against Stats) but never returned to the
// caller; packets too short to hold the expected link-layer header are
// silently skipped, same as any other malformed frame (spec §4.1).
//
// ReadPacketData copies the packet into a freshly allocated slice,
// unlike ZeroCopyReadPacketData, whose buffer is only valid until the
// next read call: the returned slice crosses a channel to the worker's
// event loop (internal/worker.Worker.readLoop) and must still be valid
// after this method is called again.
func (c *Capture) Next() ([]byte, time.Time, error) {
	for {
		data, ci, err := c.handle.ReadPacketData()
		if err != nil {
			return nil, time.Time{}, err
		}
		c.seen++
		if c.sampleRate > 1 && (c.seen-1)%uint64(c.sampleRate) != 0 {
			continue
		}
		if len(data) < c.linkHdrLen {
			continue
		}
		return data[c.linkHdrLen:], ci.Timestamp, nil
	}
}

func (c *Capture) Stats() Stats {
	if !c.live {
		return Stats{Valid: false}
	}
	s, err := c.handle.Stats()
	if err != nil {
		return Stats{Valid: false}
	}
	return Stats{
		Received:  uint32(s.PacketsReceived),
		Dropped:   uint32(s.PacketsDropped),
		IfDropped: uint32(s.PacketsIfDropped),
		Captured:  uint32(c.seen),
		Valid:     true,
	}
}

func (c *Capture) Close() { c.handle.Close() }
