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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Version is the only record version this package emits or accepts.
	Version = 2

	// MaxCapacity is the fixed size of a FlowBuffer's backing array.
	MaxCapacity = 65535
	// TargetFlushSize is the append-triggered flush threshold from spec §4.3.
	TargetFlushSize = 1200
	// MaxSetsCount is the largest sets_count a single record may carry.
	MaxSetsCount = 255
	// MaxNamesOrIPs bounds names_count and ips_count per set.
	MaxNamesOrIPs = 255
	// MaxNameLen is the longest a single wire-form domain name may be.
	MaxNameLen = 255

	// DefaultPort is the UDP port collectors listen on.
	DefaultPort = 5300

	// FlagStats marks a record as carrying a StatsSet instead of DataSets.
	FlagStats uint16 = 0x0001

	headerSize    = 8
	setHeaderSize = 8
	statsSetSize  = 20
)

// ErrOverflow is returned when appending a set would exceed MaxCapacity.
var ErrOverflow = errors.New("wire: record would exceed maximum buffer size")

// Header is the fixed 8-byte record header.
type Header struct {
	Version        uint8
	SetsCount      uint8
	Flags          uint16
	SequenceNumber uint32
}

// IsStats reports whether the STATS flag bit is set.
func (h Header) IsStats() bool {
	return h.Flags&FlagStats != 0
}

func (h Header) encode(buf []byte) {
	buf[0] = h.Version
	buf[1] = h.SetsCount
	binary.BigEndian.PutUint16(buf[2:4], h.Flags)
	binary.BigEndian.PutUint32(buf[4:8], h.SequenceNumber)
}

// ParseHeader decodes the first 8 bytes of buf as a Header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("wire: buffer too short for header: %d bytes", len(buf))
	}
	return Header{
		Version:        buf[0],
		SetsCount:      buf[1],
		Flags:          binary.BigEndian.Uint16(buf[2:4]),
		SequenceNumber: binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// DataSet is a decoded (client_ip, names, ips) tuple, as recovered from
// the wire by ParseDataSets.
type DataSet struct {
	ClientIP [4]byte
	Names    [][]byte
	IPs      [][4]byte
}

// StatsSet is the decoded body of a stats record.
type StatsSet struct {
	PktsCaptured   uint32
	PktsReceived   uint32
	PktsDropped    uint32
	PktsIfDropped  uint32
	SampleRate     uint32
}

// FlowBuffer is a fixed-capacity scratch buffer holding one in-progress
// or completed wire record. It is owned by a single worker and must
// never be accessed from more than one goroutine at a time.
type FlowBuffer struct {
	buf [MaxCapacity]byte
	len int
}

// NewFlowBuffer allocates a FlowBuffer. Workers allocate exactly one at
// startup and reuse it for the life of the process.
func NewFlowBuffer() *FlowBuffer {
	return &FlowBuffer{}
}

// Len returns the number of bytes written to the buffer since it last
// became active. Len()==0 means there is no header yet (idle).
func (b *FlowBuffer) Len() int { return b.len }

// Active reports whether the buffer currently holds a header (and
// possibly sets) pending flush.
func (b *FlowBuffer) Active() bool { return b.len > 0 }

// SetsCount returns the sets_count field of the in-progress header.
// Only meaningful when Active() is true.
func (b *FlowBuffer) SetsCount() uint8 {
	if b.len == 0 {
		return 0
	}
	return b.buf[1]
}

// Bytes returns the completed record: header plus every appended set.
func (b *FlowBuffer) Bytes() []byte { return b.buf[:b.len] }

// Reset clears the buffer, making it idle again. Called after a
// successful flush, or to discard a buffer on overflow.
func (b *FlowBuffer) Reset() { b.len = 0 }

// ensureHeader writes a fresh zero-valued header if the buffer is idle.
// The sequence_number is left at zero; it is only patched at flush time
// (spec §4.3 step 1-2).
func (b *FlowBuffer) ensureHeader() {
	if b.len != 0 {
		return
	}
	h := Header{Version: Version, SetsCount: 0, Flags: 0, SequenceNumber: 0}
	h.encode(b.buf[:headerSize])
	b.len = headerSize
}

// PatchSequenceNumber overwrites the header's sequence_number field in
// place. Called by the batcher immediately before handing the buffer to
// the emitter.
func (b *FlowBuffer) PatchSequenceNumber(seq uint32) {
	binary.BigEndian.PutUint32(b.buf[4:8], seq)
}

func (b *FlowBuffer) incSetsCount() {
	b.buf[1]++
}

// AppendDataSet appends one DataSet built from names (wire-form domain
// names, first is the query name, rest are CNAME targets in answer
// order) and ips (raw network-byte-order IPv4 addresses). It returns
// ErrOverflow without modifying sets_count if the set would not fit in
// the remaining capacity; the caller is responsible for discarding the
// whole buffer in that case (spec §4.3 "Overflow policy").
func (b *FlowBuffer) AppendDataSet(clientIP [4]byte, names [][]byte, ips [][4]byte) error {
	b.ensureHeader()

	namesCount := len(names)
	if namesCount > MaxNamesOrIPs {
		namesCount = MaxNamesOrIPs
	}
	ipsCount := len(ips)
	if ipsCount > MaxNamesOrIPs {
		ipsCount = MaxNamesOrIPs
	}

	rawNamesLen := 0
	for _, n := range names[:namesCount] {
		rawNamesLen += len(n)
	}
	paddedNamesLen := rawNamesLen
	if rem := paddedNamesLen % 4; rem != 0 {
		paddedNamesLen += 4 - rem
	}

	needed := setHeaderSize + paddedNamesLen + 4*ipsCount
	if b.len+needed > MaxCapacity {
		return ErrOverflow
	}

	setStart := b.len
	setHdr := b.buf[setStart : setStart+setHeaderSize]
	copy(setHdr[0:4], clientIP[:])
	setHdr[4] = uint8(namesCount)
	setHdr[5] = uint8(ipsCount)
	binary.BigEndian.PutUint16(setHdr[6:8], uint16(paddedNamesLen))
	b.len += setHeaderSize

	for _, n := range names[:namesCount] {
		copy(b.buf[b.len:], n)
		b.len += len(n)
	}
	for b.len%4 != 0 {
		b.buf[b.len] = 0
		b.len++
	}

	for _, ip := range ips[:ipsCount] {
		copy(b.buf[b.len:b.len+4], ip[:])
		b.len += 4
	}

	b.incSetsCount()
	return nil
}

// WriteStatsSet overwrites the buffer with a fresh single-set stats
// record (a stats buffer always starts from an idle buffer; the
// batcher enforces this by using a dedicated FlowBuffer for stats).
func (b *FlowBuffer) WriteStatsSet(s StatsSet) {
	b.Reset()
	h := Header{Version: Version, SetsCount: 1, Flags: FlagStats, SequenceNumber: 0}
	h.encode(b.buf[:headerSize])
	b.len = headerSize

	body := b.buf[b.len : b.len+statsSetSize]
	binary.BigEndian.PutUint32(body[0:4], s.PktsCaptured)
	binary.BigEndian.PutUint32(body[4:8], s.PktsReceived)
	binary.BigEndian.PutUint32(body[8:12], s.PktsDropped)
	binary.BigEndian.PutUint32(body[12:16], s.PktsIfDropped)
	binary.BigEndian.PutUint32(body[16:20], s.SampleRate)
	b.len += statsSetSize
}

// ParseDataSets decodes count DataSets starting at offset 0 of body
// (the bytes following the header). It is the inverse of
// AppendDataSet and is used both by tests asserting round-trip
// idempotence and by any downstream collector written against this
// package.
func ParseDataSets(body []byte, count uint8) ([]DataSet, error) {
	sets := make([]DataSet, 0, count)
	off := 0
	for i := 0; i < int(count); i++ {
		if off+setHeaderSize > len(body) {
			return nil, fmt.Errorf("wire: truncated set header at set %d", i)
		}
		hdr := body[off : off+setHeaderSize]
		var ds DataSet
		copy(ds.ClientIP[:], hdr[0:4])
		namesCount := int(hdr[4])
		ipsCount := int(hdr[5])
		namesLen := int(binary.BigEndian.Uint16(hdr[6:8]))
		off += setHeaderSize

		if namesLen%4 != 0 {
			return nil, fmt.Errorf("wire: set %d names_len %d is not a multiple of 4", i, namesLen)
		}
		if off+namesLen > len(body) {
			return nil, fmt.Errorf("wire: truncated names region at set %d", i)
		}
		names, err := splitWireNames(body[off:off+namesLen], namesCount)
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", i, err)
		}
		ds.Names = names
		off += namesLen

		if off+4*ipsCount > len(body) {
			return nil, fmt.Errorf("wire: truncated ips region at set %d", i)
		}
		ds.IPs = make([][4]byte, ipsCount)
		for j := 0; j < ipsCount; j++ {
			copy(ds.IPs[j][:], body[off:off+4])
			off += 4
		}

		sets = append(sets, ds)
	}
	return sets, nil
}

// splitWireNames splits the first `count` wire-form domain names off a
// padded names region by walking DNS label-length bytes. Bytes after
// the count-th name (the zero padding) are not inspected.
func splitWireNames(region []byte, count int) ([][]byte, error) {
	names := make([][]byte, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		start := off
		for {
			if off >= len(region) {
				return nil, fmt.Errorf("truncated name %d", i)
			}
			labelLen := int(region[off])
			off++
			if labelLen == 0 {
				break
			}
			off += labelLen
			if off > len(region) {
				return nil, fmt.Errorf("name %d label overruns region", i)
			}
		}
		if off-start > MaxNameLen {
			return nil, fmt.Errorf("name %d exceeds %d bytes", i, MaxNameLen)
		}
		names = append(names, region[start:off])
	}
	return names, nil
}

// ParseStatsSet decodes a 20-byte stats body.
func ParseStatsSet(body []byte) (StatsSet, error) {
	if len(body) < statsSetSize {
		return StatsSet{}, fmt.Errorf("wire: stats body too short: %d bytes", len(body))
	}
	return StatsSet{
		PktsCaptured:  binary.BigEndian.Uint32(body[0:4]),
		PktsReceived:  binary.BigEndian.Uint32(body[4:8]),
		PktsDropped:   binary.BigEndian.Uint32(body[8:12]),
		PktsIfDropped: binary.BigEndian.Uint32(body[12:16]),
		SampleRate:    binary.BigEndian.Uint32(body[16:20]),
	}, nil
}
