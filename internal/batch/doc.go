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
Package batch packs decoded DNS responses into a wire.FlowBuffer and
decides when to flush it: on size, on count, or when told to by a
timer tick. A Batcher owns exactly one FlowBuffer and one monotonic
per-worker sequence counter; neither is safe for concurrent use, which
is fine because a worker's event loop never calls into a Batcher from
more than one place at a time.
*/
package batch
