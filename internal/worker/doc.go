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
Package worker implements the single-threaded per-worker event loop
described in spec.md §5: one capture source, one decap -> dnsmsg ->
batch pipeline, a jittered push timer driving Batcher.Tick, and (in
live-capture mode only) a jittered stats timer that builds and emits a
StatsSet every ~10s. Everything a Worker owns -- its FlowBuffer, its
sequence counter, its UDP socket -- is touched from exactly one
goroutine's worth of logic at a time: the select loop in RunLive. A second
goroutine exists only to turn the capture source's blocking Next() call
into a channel the select loop can multiplex against timers and
shutdown.
*/
package worker
