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
Package config parses the command-line surface described in spec.md §6
into a single immutable Config value. Parse is the only function in
this program that touches flag.FlagSet; everything downstream receives
a *Config built once and never mutated (Design Notes §9, "global
variables for configuration should become an immutable per-worker
configuration value").
*/
package config
