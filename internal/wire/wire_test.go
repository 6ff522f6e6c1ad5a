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
	"testing"

	"github.com/stretchr/testify/require"
)

func mustIP(a, b, c, d byte) [4]byte { return [4]byte{a, b, c, d} }

// Scenario 1 from spec §8: a single A response.
func TestAppendDataSetSingleResponse(t *testing.T) {
	fb := NewFlowBuffer()
	require.False(t, fb.Active())

	name := []byte("\x07example\x03com\x00")
	ip := mustIP(0x5d, 0xb8, 0xd8, 0x22)

	err := fb.AppendDataSet(mustIP(10, 0, 0, 7), [][]byte{name}, [][4]byte{ip})
	require.NoError(t, err)

	fb.PatchSequenceNumber(1)
	hdr, err := ParseHeader(fb.Bytes())
	require.NoError(t, err)
	require.EqualValues(t, Version, hdr.Version)
	require.EqualValues(t, 1, hdr.SetsCount)
	require.EqualValues(t, 1, hdr.SequenceNumber)
	require.False(t, hdr.IsStats())

	sets, err := ParseDataSets(fb.Bytes()[8:], hdr.SetsCount)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Equal(t, mustIP(10, 0, 0, 7), sets[0].ClientIP)
	require.Len(t, sets[0].Names, 1)
	require.Equal(t, name, sets[0].Names[0])
	require.Equal(t, [][4]byte{ip}, sets[0].IPs)

	// 13 bytes of name, padded with 3 zero bytes to 16.
	require.Equal(t, 8+8+16+4, fb.Len())
}

// Scenario 2: CNAME chain ordering is preserved.
func TestAppendDataSetCNAMEChain(t *testing.T) {
	fb := NewFlowBuffer()
	names := [][]byte{
		[]byte("\x03www\x03foo\x04test\x00"),
		[]byte("\x03foo\x04test\x00"),
	}
	ips := [][4]byte{{1, 2, 3, 4}}

	require.NoError(t, fb.AppendDataSet(mustIP(10, 0, 0, 1), names, ips))

	sets, err := ParseDataSets(fb.Bytes()[8:], fb.SetsCount())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Equal(t, names, sets[0].Names)
	require.Equal(t, ips, sets[0].IPs)
}

func TestAppendDataSetPadsNamesToWordBoundary(t *testing.T) {
	fb := NewFlowBuffer()
	name := []byte("\x01a\x00") // 3 bytes, pads to 4
	require.NoError(t, fb.AppendDataSet(mustIP(1, 1, 1, 1), [][]byte{name}, [][4]byte{{1, 1, 1, 1}}))

	raw := fb.Bytes()
	namesLen := int(raw[8+6])<<8 | int(raw[8+7])
	require.Equal(t, 4, namesLen)
	require.Zero(t, namesLen%4)
}

func TestAppendDataSetTruncatesCountsTo255(t *testing.T) {
	fb := NewFlowBuffer()
	names := make([][]byte, 300)
	for i := range names {
		names[i] = []byte("\x01a\x00")
	}
	ips := make([][4]byte, 300)

	require.NoError(t, fb.AppendDataSet(mustIP(9, 9, 9, 9), names, ips))
	require.EqualValues(t, MaxNamesOrIPs, fb.Bytes()[8+4])
	require.EqualValues(t, MaxNamesOrIPs, fb.Bytes()[8+5])
}

func TestAppendDataSetOverflowIsReported(t *testing.T) {
	fb := NewFlowBuffer()
	bigName := make([]byte, 255)
	bigName[0] = 0 // degenerate but large enough to exercise the size math
	names := make([][]byte, 255)
	for i := range names {
		names[i] = bigName
	}
	ips := make([][4]byte, 255)

	err := fb.AppendDataSet(mustIP(1, 1, 1, 1), names, ips)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestStatsSetRoundTrip(t *testing.T) {
	fb := NewFlowBuffer()
	fb.WriteStatsSet(StatsSet{
		PktsCaptured:  100,
		PktsReceived:  120,
		PktsDropped:   5,
		PktsIfDropped: 0,
		SampleRate:    4,
	})

	hdr, err := ParseHeader(fb.Bytes())
	require.NoError(t, err)
	require.EqualValues(t, 1, hdr.SetsCount)
	require.True(t, hdr.IsStats())

	stats, err := ParseStatsSet(fb.Bytes()[8:])
	require.NoError(t, err)
	require.Equal(t, StatsSet{100, 120, 5, 0, 4}, stats)
}

// Size-trigger invariant from spec §8: after any successful append,
// either len < 1200 and sets_count < 255, or the buffer was just reset.
func TestSizeTriggerInvariant(t *testing.T) {
	fb := NewFlowBuffer()
	name := []byte("\x07example\x03com\x00")
	ip := [4]byte{1, 2, 3, 4}

	for i := 0; i < 50; i++ {
		require.NoError(t, fb.AppendDataSet([4]byte{10, 0, 0, byte(i)}, [][]byte{name}, [][4]byte{ip}))
		ok := fb.Len() < TargetFlushSize && int(fb.SetsCount()) < MaxSetsCount
		if !ok {
			fb.Reset()
		}
		require.True(t, ok || fb.Len() == 0)
	}
}

func TestResetMakesBufferIdle(t *testing.T) {
	fb := NewFlowBuffer()
	require.NoError(t, fb.AppendDataSet([4]byte{1, 1, 1, 1}, [][]byte{{0}}, [][4]byte{{1, 1, 1, 1}}))
	require.True(t, fb.Active())
	fb.Reset()
	require.False(t, fb.Active())
	require.Zero(t, fb.Len())
}
