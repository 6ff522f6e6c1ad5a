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

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsflow/dnsflow/internal/wire"
)

func TestParseMinimalLiveWithUDPDestination(t *testing.T) {
	cfg, err := Parse("dnsflow", []string{"-i", "eth0", "-u", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "eth0", cfg.Interface)
	assert.True(t, cfg.Promisc)
	require.Len(t, cfg.Destinations, 1)
	assert.Equal(t, wire.DefaultPort, cfg.Destinations[0].Port)
	assert.Equal(t, 1, cfg.ProcI)
	assert.Equal(t, 1, cfg.NumProcs)
	assert.False(t, cfg.OneShot())
}

func TestParseReadFileIsOneShot(t *testing.T) {
	cfg, err := Parse("dnsflow", []string{"-r", "capture.pcap", "-w", "out.pcap"})
	require.NoError(t, err)
	assert.True(t, cfg.OneShot())
}

func TestParseRequiresInterfaceOrReadFile(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-u", "10.0.0.1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseInterfaceAndReadFileMutuallyExclusive(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-i", "eth0", "-r", "f.pcap", "-u", "10.0.0.1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseRequiresUDPOrDump(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-i", "eth0"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseManualShard(t *testing.T) {
	cfg, err := Parse("dnsflow", []string{"-i", "eth0", "-u", "10.0.0.1", "-m", "2/4"})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ProcI)
	assert.Equal(t, 4, cfg.NumProcs)
}

func TestParseManualShardRejectsOutOfRange(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-i", "eth0", "-u", "10.0.0.1", "-m", "5/4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseAutoForkRejectsManualShard(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-i", "eth0", "-u", "10.0.0.1", "-M", "4", "-m", "2/4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseAutoForkRejectsReadFile(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-r", "f.pcap", "-u", "10.0.0.1", "-M", "4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseAutoForkRejectsDumpFile(t *testing.T) {
	_, err := Parse("dnsflow", []string{"-i", "eth0", "-M", "4", "-w", "out.pcap"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseUDPDestinationLimit(t *testing.T) {
	args := []string{"-i", "eth0"}
	for i := 0; i < MaxDestinations; i++ {
		args = append(args, "-u", "10.0.0.1:5300")
	}
	args = append(args, "-u", "10.0.0.2:5300")
	_, err := Parse("dnsflow", args)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseEncapAndMDNSFlags(t *testing.T) {
	cfg, err := Parse("dnsflow", []string{"-i", "eth0", "-u", "10.0.0.1", "-X", "1234", "-J", "30030", "-Y", "-p"})
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), cfg.PcapRecordPort)
	assert.Equal(t, uint16(30030), cfg.JMirrorPort)
	assert.True(t, cfg.EnableMDNS)
	assert.False(t, cfg.Promisc)
}
