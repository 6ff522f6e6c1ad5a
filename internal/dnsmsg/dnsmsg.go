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

package dnsmsg

import (
	"bytes"
	"fmt"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/dnsflow/dnsflow/internal/wire"
)

// Response is the projection of an accepted DNS answer: a client
// address, the owner name followed by any CNAME targets in answer
// order, and the A-record addresses found in the answer section. Both
// Names and IPs are in the form internal/wire.FlowBuffer.AppendDataSet
// expects.
type Response struct {
	ClientIP [4]byte
	Names    [][]byte
	IPs      [][4]byte
}

// Decode parses payload as a DNS message and projects it to a
// Response. The second return value is false whenever the message is
// well-formed but not one this system cares about (a query, a
// non-recursive or non-NOERROR answer, more than one question, a
// question type other than A, or a response with no usable names or
// addresses). These rejections are silent; logger receives a line only
// when the question name cannot be re-encoded (which also rejects) or
// when an individual CNAME or A answer is dropped. The error return is
// reserved for payloads that fail to parse as DNS at all.
func Decode(logger *log.Logger, payload []byte, clientIP [4]byte) (*Response, bool, error) {
	var dns layers.DNS
	if err := dns.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, false, fmt.Errorf("dnsmsg: malformed DNS payload: %w", err)
	}

	if !dns.QR || !dns.RD || !dns.RA {
		return nil, false, nil
	}
	if dns.ResponseCode != layers.DNSResponseCodeNoErr {
		return nil, false, nil
	}
	if len(dns.Questions) != 1 {
		return nil, false, nil
	}
	q := dns.Questions[0]
	if q.Type != layers.DNSTypeA || q.Class != layers.DNSClassIN {
		return nil, false, nil
	}

	ownerName, err := encodeWireName(q.Name)
	if err != nil {
		logger.Printf("dnsmsg: dropping response: question name: %v", err)
		return nil, false, nil
	}

	names := [][]byte{ownerName}
	var ips [][4]byte

	for _, rr := range dns.Answers {
		switch rr.Type {
		case layers.DNSTypeCNAME:
			if len(names) >= wire.MaxNamesOrIPs {
				logger.Printf("dnsmsg: dropping excess CNAME target past %d names", wire.MaxNamesOrIPs)
				continue
			}
			wn, err := encodeWireName(rr.CNAME)
			if err != nil {
				logger.Printf("dnsmsg: dropping malformed CNAME target: %v", err)
				continue
			}
			names = append(names, wn)
		case layers.DNSTypeA:
			if len(ips) >= wire.MaxNamesOrIPs {
				logger.Printf("dnsmsg: dropping excess A record past %d addresses", wire.MaxNamesOrIPs)
				continue
			}
			ip4 := rr.IP.To4()
			if ip4 == nil {
				logger.Printf("dnsmsg: dropping A record with non-IPv4 address %v", rr.IP)
				continue
			}
			var addr [4]byte
			copy(addr[:], ip4)
			ips = append(ips, addr)
		}
	}

	if len(names) == 0 || len(ips) == 0 {
		return nil, false, nil
	}

	return &Response{ClientIP: clientIP, Names: names, IPs: ips}, true, nil
}

// encodeWireName re-encodes a decompressed, dot-joined name (as
// produced by layers.DNS's decoder) into DNS wire form: a sequence of
// length-prefixed labels terminated by a zero-length label. gopacket
// decompresses names while decoding, so this never has to resolve a
// compression pointer itself.
func encodeWireName(name []byte) ([]byte, error) {
	name = bytes.TrimSuffix(name, []byte{'.'})

	var labels [][]byte
	if len(name) > 0 {
		labels = bytes.Split(name, []byte{'.'})
	}

	var buf bytes.Buffer
	for _, label := range labels {
		if len(label) == 0 {
			return nil, fmt.Errorf("empty label in name %q", name)
		}
		if len(label) > 63 {
			return nil, fmt.Errorf("label %q exceeds 63 bytes", label)
		}
		buf.WriteByte(byte(len(label)))
		buf.Write(label)
	}
	buf.WriteByte(0)

	if buf.Len() > wire.MaxNameLen {
		return nil, fmt.Errorf("name %q exceeds %d wire bytes", name, wire.MaxNameLen)
	}
	return buf.Bytes(), nil
}
