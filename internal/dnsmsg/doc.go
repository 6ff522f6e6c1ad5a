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
Package dnsmsg decodes a DNS UDP payload and projects it to a Response
(client_ip, names, ips) if and only if it is a well-formed recursive
answer to a single A question.

Acceptance requires QR=1, RD=1, RA=1, RCODE=NOERROR, and exactly one
question of type A. Names are decoded (decompressed) by
github.com/google/gopacket/layers and then re-encoded into DNS wire
form (length-prefixed labels terminated by a zero-length label) because
that is the representation the wire record carries. CNAME answer
targets are appended to Response.Names in answer order without
verifying that each forms a chain with the previous name — the
upstream implementation this was derived from does the same, see
DESIGN.md.
*/
package dnsmsg
