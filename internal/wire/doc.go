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

/*
Package wire implements the dnsflow binary record format: a Header
followed by sets_count DataSets (or, when the STATS flag is set, a
single StatsSet).

	Header (8 bytes):
	  version          1 byte,  constant 2
	  sets_count       1 byte
	  flags            2 bytes, bit 0 = STATS
	  sequence_number  4 bytes, monotonic per worker

	DataSet:
	  client_ip    4 bytes
	  names_count  1 byte
	  ips_count    1 byte
	  names_len    2 bytes, multiple of 4
	  names        names_len bytes, zero-padded
	  ips          4 * ips_count bytes

	StatsSet (20 bytes):
	  pkts_captured, pkts_received, pkts_dropped, pkts_ifdropped, sample_rate

All multi-byte integers are network byte order. A FlowBuffer is a fixed
65535-byte scratch buffer that accumulates one record at a time; it is
owned by a single worker and never shared.
*/
package wire
