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

package pcapfilter

import "fmt"

const (
	ipHdrLen  = 20
	udpHdrLen = 8

	dnsFlagsOffset = 10
	dstIPOffset    = 16

	dnsFlagsMask  = 0x8187
	dnsFlagsValue = 0x8180
)

// Params configures Build. EncapOffset is the number of bytes between
// the end of the outer UDP header and the start of the encapsulated
// IPv4 header (sizeof(pcap_record_hdr)+sizeof(ethernet_hdr), or
// sizeof(jmirror_hdr), or 0 for no encapsulation) — it must match
// whatever internal/decap.Encap is configured to unwrap.
type Params struct {
	EncapOffset int
	ProcI       int // 1-based; only meaningful when NumProcs > 1
	NumProcs    int
	EnableMDNS  bool
}

// Build assembles the BPF expression a worker installs on its capture
// handle, per the offset and shard-modulo arithmetic described in
// build_pcap_filter upstream.
func Build(p Params) string {
	udpOffset := 0
	ipOffset := 0
	if p.EncapOffset != 0 {
		// udp, encap, ip, udp
		udpOffset = udpHdrLen + p.EncapOffset + ipHdrLen
		// ip, udp, encap, ip
		ipOffset = ipHdrLen + udpHdrLen + p.EncapOffset
	}

	var portFilter string
	if p.EnableMDNS {
		portFilter = fmt.Sprintf("(udp[%d:2] = 53 or udp[%d:2] = 5353)", udpOffset, udpOffset)
	} else {
		portFilter = fmt.Sprintf("udp[%d:2] = 53", udpOffset)
	}

	dnsRespFilter := fmt.Sprintf("udp and %s and udp[%d:2] & 0x%x = 0x%x",
		portFilter, dnsFlagsOffset+udpOffset, dnsFlagsMask, dnsFlagsValue)

	multiProcFilter := dnsRespFilter
	if p.NumProcs > 1 {
		off := dstIPOffset + ipOffset
		multiProcFilter = fmt.Sprintf("%s and ip[%d:4] - ip[%d:4] / %d * %d = %d",
			dnsRespFilter, off, off, p.NumProcs, p.NumProcs, p.ProcI-1)
	}

	return fmt.Sprintf("(%s) or (vlan and (%s))", multiProcFilter, multiProcFilter)
}
