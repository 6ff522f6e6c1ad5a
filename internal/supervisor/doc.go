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
Package supervisor implements spec.md §4.6's multi-process fan-out.

Go cannot safely fork() a multi-threaded runtime (Design Notes §9
explicitly sanctions a non-fork() equivalent provided it preserves
independent processes with independent capture handles and no shared
memory), so this package re-execs the running binary n-1 times with
"-M n" rewritten to "-m i/n", rather than forking in place. Each child
is a full os/exec child process: its own address space, its own BPF
program installed on its own capture handle, no memory shared with the
parent. ChildEnvVar marks a re-exec'd process so cmd/dnsflow knows to
arm PR_SET_PDEATHSIG on Linux.
*/
package supervisor
