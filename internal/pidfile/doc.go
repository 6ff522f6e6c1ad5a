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
Package pidfile implements the "-P FILE" exclusive PID-file lock: open
or create the file, take a non-blocking exclusive flock, truncate it,
and write the current process's PID. Holding the returned Lock keeps
the flock alive for the life of the process; Release drops it and
closes the file.
*/
package pidfile
