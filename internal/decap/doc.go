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
Package decap walks a captured L3 frame far enough to recover the
innermost IPv4/UDP payload and the client address it was sent to,
rejecting anything truncated or malformed along the way.

It deliberately does not use a general packet-decoding library: its
job is a single bounds-checked pass that rejects bad input as cheaply
as possible, not building a layer graph. At most one level of
encapsulation is unwrapped — pcap-record-over-UDP (a libpcap capture
header plus a synthetic Ethernet header) or J-Mirror-over-UDP (an
8-byte vendor header) — matching the outer UDP destination port
against the configured encapsulation ports.
*/
package decap
