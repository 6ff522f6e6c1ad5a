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

package emit

import (
	"io"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/dnsflow/dnsflow/internal/wire"
)

// MaxDestinations is the largest number of UDP destinations a run may
// configure. internal/config enforces it; New does not check it.
const MaxDestinations = 10

// loopbackHdrLen is the size of the PF_UNSPEC header prefixed to every
// record written to the dump file.
const loopbackHdrLen = 4

// DumpWriter is the subset of pcapgo.Writer an Emitter needs; see
// NewDumpWriter for the concrete construction this program uses.
type DumpWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// NewDumpWriter opens w as a pcap dump file with link type DLT_NULL,
// ready to be passed to New.
func NewDumpWriter(w io.Writer) (DumpWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(wire.MaxCapacity+loopbackHdrLen, layers.LinkTypeNull); err != nil {
		return nil, err
	}
	return pw, nil
}

// Emitter sends completed wire records to configured UDP destinations
// and, if configured, records them to a dump file. It is not safe for
// concurrent use; a worker owns exactly one.
type Emitter struct {
	destinations []*net.UDPAddr
	conn         *net.UDPConn
	dump         DumpWriter
	logger       *log.Logger
	now          func() time.Time
}

// New constructs an Emitter. destinations must already carry the
// dnsflow UDP port (wire.DefaultPort); dump may be nil to disable
// dump-file recording.
func New(destinations []*net.UDPAddr, dump DumpWriter, logger *log.Logger) *Emitter {
	return &Emitter{
		destinations: destinations,
		dump:         dump,
		logger:       logger,
		now:          time.Now,
	}
}

// Send implements batch.Sender: it fans record out to every configured
// destination (logging, but not aborting on, a per-destination
// failure) and appends it to the dump file if one is configured.
func (e *Emitter) Send(record []byte) {
	if e.dump != nil {
		e.writeDump(record)
	}
	if len(e.destinations) == 0 {
		return
	}
	if e.conn == nil {
		conn, err := net.ListenUDP("udp4", nil)
		if err != nil {
			e.logger.Printf("emit: failed to open UDP socket: %v", err)
			return
		}
		e.conn = conn
	}
	for _, dst := range e.destinations {
		if _, err := e.conn.WriteToUDP(record, dst); err != nil {
			e.logger.Printf("emit: send to %s failed: %v", dst, err)
		}
	}
}

func (e *Emitter) writeDump(record []byte) {
	framed := make([]byte, loopbackHdrLen+len(record))
	copy(framed[loopbackHdrLen:], record)
	ci := gopacket.CaptureInfo{
		Timestamp:     e.now(),
		CaptureLength: len(framed),
		Length:        len(framed),
	}
	if err := e.dump.WritePacket(ci, framed); err != nil {
		e.logger.Printf("emit: dump write failed: %v", err)
	}
}

// Close releases the emitter's UDP socket, if one was ever opened.
func (e *Emitter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}
