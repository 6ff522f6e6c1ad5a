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

package decap

import "encoding/binary"

const (
	ipProtoUDP = 17

	// pcapRecordHdrLen is sizeof(struct pcap_sf_pkthdr): two 32-bit
	// timeval fields plus caplen and len, all 4 bytes.
	pcapRecordHdrLen = 16
	// ethernetHdrLen is sizeof(struct ether_header): two 6-byte MACs
	// plus a 2-byte ethertype.
	ethernetHdrLen = 14
	// jmirrorHdrLen is sizeof(struct jmirror_hdr): intercept_id and
	// session_id, both uint32.
	jmirrorHdrLen = 8

	// PcapRecordEncapOffset is the byte span a pcap-record carrier
	// skips between the outer UDP payload and the inner IPv4 header:
	// pcap_sf_pkthdr + ethernet_hdr. cmd/dnsflow uses this to compute
	// internal/pcapfilter.Params.EncapOffset so the BPF pre-filter and
	// this package agree on exactly the same offsets.
	PcapRecordEncapOffset = pcapRecordHdrLen + ethernetHdrLen
	// JMirrorEncapOffset is the equivalent span for a J-Mirror
	// carrier.
	JMirrorEncapOffset = jmirrorHdrLen
)

// Encap configures the two supported encapsulation carriers. A zero
// value (both ports 0) disables encapsulation handling entirely.
type Encap struct {
	// PcapRecordPort is the outer UDP destination port that carries a
	// pcap-record + Ethernet header before the inner IPv4 frame.
	PcapRecordPort uint16
	// JMirrorPort is the outer UDP destination port that carries an
	// 8-byte J-Mirror header before the inner IPv4 frame.
	JMirrorPort uint16
}

// Result is the output of a successful Decapsulate call.
type Result struct {
	ClientIP        [4]byte
	DNSPayloadBytes []byte
}

// Decapsulate walks frame (the L3 bytes delivered by the capture
// callback) and returns the innermost UDP payload and client address,
// or ok=false if frame fails validation at any step. It never
// allocates on the success path; DNSPayloadBytes aliases frame.
func Decapsulate(frame []byte, encap Encap) (Result, bool) {
	ip, udp, ok := ipUDPCheck(frame)
	if !ok {
		return Result{}, false
	}

	dstPort := binary.BigEndian.Uint16(udp[2:4])
	var encapOffset int
	switch {
	case encap.PcapRecordPort != 0 && dstPort == encap.PcapRecordPort:
		encapOffset = pcapRecordHdrLen + ethernetHdrLen
	case encap.JMirrorPort != 0 && dstPort == encap.JMirrorPort:
		encapOffset = jmirrorHdrLen
	}

	if encapOffset > 0 {
		udpPayload := udp[8:]
		if encapOffset > len(udpPayload) {
			return Result{}, false
		}
		inner := udpPayload[encapOffset:]
		ip, udp, ok = ipUDPCheck(inner)
		if !ok {
			return Result{}, false
		}
	}

	var clientIP [4]byte
	copy(clientIP[:], ip[16:20])
	return Result{ClientIP: clientIP, DNSPayloadBytes: udp[8:]}, true
}

// ipUDPCheck validates an IPv4 header followed immediately by a UDP
// header within pkt, per spec steps 1-2, and returns slices anchored
// at the start of each header.
func ipUDPCheck(pkt []byte) (ip, udp []byte, ok bool) {
	ip, ok = ip4Check(pkt)
	if !ok {
		return nil, nil, false
	}
	udp, ok = udp4Check(pkt, ip)
	if !ok {
		return nil, nil, false
	}
	return ip, udp, true
}

// ip4Check validates the outer IPv4 header per spec §4.1 step 1 and
// returns a slice anchored at the start of the IPv4 header.
func ip4Check(pkt []byte) ([]byte, bool) {
	if len(pkt) < 20 {
		return nil, false
	}
	version := pkt[0] >> 4
	if version != 4 {
		return nil, false
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || len(pkt) < ihl {
		return nil, false
	}
	totalLen := int(binary.BigEndian.Uint16(pkt[2:4]))
	if len(pkt) < totalLen {
		return nil, false
	}
	if totalLen < ihl {
		return nil, false
	}
	return pkt[:totalLen], true
}

// udp4Check validates that ip carries a UDP payload that fits within
// the captured bytes, per spec §4.1 step 2, and returns a slice
// anchored at the start of the UDP header.
func udp4Check(pkt, ip []byte) ([]byte, bool) {
	if ip[9] != ipProtoUDP {
		return nil, false
	}
	ihl := int(ip[0]&0x0f) * 4
	if len(ip) < ihl+8 {
		return nil, false
	}
	udp := ip[ihl:]
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < 8 || len(udp) < udpLen {
		return nil, false
	}
	return udp[:udpLen], true
}
