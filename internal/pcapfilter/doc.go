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
Package pcapfilter builds the BPF expression string a worker installs
on its capture handle. It composes a port match, a DNS-response-flags
match, and (for multi-process sharding) a modulo predicate over the
client's IPv4 address, then wraps the whole thing so it also matches
one level of 802.1Q VLAN tagging. This package only assembles the
expression; compiling it is libpcap's job, invoked through
internal/capture.
*/
package pcapfilter
