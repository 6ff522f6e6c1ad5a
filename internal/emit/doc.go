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
Package emit fans a completed wire record out to zero or more UDP
destinations and, optionally, appends it to a pcap dump file opened
with link type DLT_NULL, each record prefixed by a 4-byte PF_UNSPEC
loopback header so the dump can be read back by any tool that
understands a loopback capture.
*/
package emit
