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
Package capture adapts github.com/google/gopacket/pcap to the small
contract the rest of this program needs: open a live interface or an
offline file, install a BPF filter, pull packets one at a time, and
read kernel-maintained counters back out. Everything else in this
program depends on the Source interface rather than on a pcap handle,
so it can be driven by a fake in tests; internal/worker imports pcap
only to recognize the pcap.ErrNoMoreRecord end-of-file value.
*/
package capture
