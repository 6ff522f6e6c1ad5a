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

//go:build linux

package main

import (
	"log"

	"golang.org/x/sys/unix"
)

// armParentDeathSignal asks the kernel to deliver SIGTERM to this
// process the moment its parent dies (spec.md §4.6, "platform-native
// mechanism preferred").
func armParentDeathSignal(logger *log.Logger) {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0); err != nil {
		logger.Printf("prctl PR_SET_PDEATHSIG failed: %v", err)
	}
}
