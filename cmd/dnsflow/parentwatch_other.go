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

//go:build !linux

package main

import (
	"log"
	"os"
	"time"
)

// armParentDeathSignal falls back to a 1s poll of getppid(): non-Linux
// platforms have no PR_SET_PDEATHSIG equivalent
// (original_source/dnsflow.c's non-Linux check_parent_cb does the
// same thing on a libevent timer).
func armParentDeathSignal(logger *log.Logger) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if os.Getppid() == 1 {
				logger.Printf("parent exited")
				os.Exit(0)
			}
		}
	}()
}
