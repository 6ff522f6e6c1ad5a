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

// Command dnsflow is a passive DNS-traffic observer: it captures
// recursive A-record responses off a live interface or a stored
// capture, batches them into a compact wire record per client, and
// emits that record to one or more UDP collectors and/or a pcap dump
// file. See spec.md for the full design.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dnsflow/dnsflow/internal/capture"
	"github.com/dnsflow/dnsflow/internal/config"
	"github.com/dnsflow/dnsflow/internal/decap"
	"github.com/dnsflow/dnsflow/internal/emit"
	"github.com/dnsflow/dnsflow/internal/pcapfilter"
	"github.com/dnsflow/dnsflow/internal/pidfile"
	"github.com/dnsflow/dnsflow/internal/supervisor"
	"github.com/dnsflow/dnsflow/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	progName := filepath.Base(os.Args[0])
	logger := log.New(os.Stderr, fmt.Sprintf("[%d]: ", os.Getpid()), 0)

	cfg, err := config.Parse(progName, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var pidLock *pidfile.Lock
	if cfg.PidFile != "" {
		pidLock, err = pidfile.Acquire(cfg.PidFile)
		if err != nil {
			logger.Printf("fatal: %v", err)
			return 1
		}
		defer pidLock.Release()
	}

	if os.Getenv(supervisor.ChildEnvVar) != "" {
		armParentDeathSignal(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(logger, cancel)

	var sup *supervisor.Supervisor
	if cfg.AutoFork > 1 {
		exe, err := os.Executable()
		if err != nil {
			logger.Printf("fatal: %v", err)
			return 1
		}
		sup = supervisor.New(logger)
		if err := sup.Spawn(exe, os.Args[1:], cfg.AutoFork); err != nil {
			logger.Printf("fatal: %v", err)
			return 1
		}
		// The parent runs as shard 1 of AutoFork; derive a copy rather
		// than mutating the parsed Config.
		parentCfg := *cfg
		parentCfg.ProcI = 1
		parentCfg.NumProcs = cfg.AutoFork
		cfg = &parentCfg
		go func() {
			sup.Run(ctx)
			// A child exiting tears down the whole group, including
			// this, the proc-1 worker.
			cancel()
		}()
	}

	w, dumpCloser, err := buildWorker(logger, cfg)
	if err != nil {
		logger.Printf("fatal: %v", err)
		if sup != nil {
			sup.Terminate()
		}
		return 1
	}
	if dumpCloser != nil {
		defer dumpCloser.Close()
	}

	if cfg.OneShot() {
		err = w.RunFile(ctx)
	} else {
		err = w.RunLive(ctx)
	}
	w.Shutdown()
	if sup != nil {
		sup.Terminate()
	}
	if err != nil {
		logger.Printf("fatal: %v", err)
		return 1
	}
	return 0
}

// buildWorker opens the capture source named by cfg, installs its BPF
// filter and sample rate, wires up the emitter (UDP fan-out and/or
// pcap dump), and returns a ready-to-run Worker. The returned
// io.Closer, if non-nil, is the dump file handle; it outlives the
// Worker (which only closes the UDP socket it owns) and must be
// closed by the caller after the worker loop returns.
func buildWorker(logger *log.Logger, cfg *config.Config) (*worker.Worker, io.Closer, error) {
	var src capture.Source
	var err error
	if cfg.OneShot() {
		src, err = capture.OpenFile(cfg.ReadFile)
	} else {
		src, err = capture.OpenLive(cfg.Interface, cfg.Promisc)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("capture: %w", err)
	}

	filterExpr := cfg.FilterOverride
	if filterExpr == "" {
		filterExpr = pcapfilter.Build(pcapfilter.Params{
			EncapOffset: encapOffset(cfg),
			ProcI:       cfg.ProcI,
			NumProcs:    cfg.NumProcs,
			EnableMDNS:  cfg.EnableMDNS,
		})
	}
	if err := src.SetBPFFilter(filterExpr); err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("filter: %w", err)
	}
	if cfg.SampleRate > 1 {
		src.SetSampleRate(cfg.SampleRate)
		logger.Printf("sample_rate set to %d", cfg.SampleRate)
	}

	var dumpWriter emit.DumpWriter
	var dumpCloser io.Closer
	if cfg.DumpFile != "" {
		f, err := os.Create(cfg.DumpFile)
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("dump file: %w", err)
		}
		dw, err := emit.NewDumpWriter(f)
		if err != nil {
			f.Close()
			src.Close()
			return nil, nil, fmt.Errorf("dump file: %w", err)
		}
		dumpWriter, dumpCloser = dw, f
	}

	emitter := emit.New(cfg.Destinations, dumpWriter, logger)
	enc := decap.Encap{PcapRecordPort: cfg.PcapRecordPort, JMirrorPort: cfg.JMirrorPort}
	w := worker.New(logger, src, enc, emitter, int64(os.Getpid()))

	if cfg.OneShot() {
		logger.Printf("reading from file %s, filter %q", cfg.ReadFile, filterExpr)
	} else {
		logger.Printf("listening on %s, filter %q", cfg.Interface, filterExpr)
	}
	return w, dumpCloser, nil
}

func encapOffset(cfg *config.Config) int {
	switch {
	case cfg.PcapRecordPort != 0:
		return decap.PcapRecordEncapOffset
	case cfg.JMirrorPort != 0:
		return decap.JMirrorEncapOffset
	default:
		return 0
	}
}

func waitForSignal(logger *log.Logger, cancel context.CancelFunc) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	s := <-sigc
	logger.Printf("received exit signal: %v", s)
	cancel()
}
