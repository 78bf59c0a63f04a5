/*
 * Copyright 2024 The Perfetto Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// tracedctl is a small operator tool that stands up a service.Core in this
// process, drives one producer and one consumer against a real shared-memory
// region, and prints buffer and session diagnostics as it goes. It exists to
// exercise the tracing stack end to end without a real inter-process
// producer or a real socket transport, the same role the teacher's
// cmd/debug-capacity/main.go played for the shared-memory ring alone.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/etsangsplk/perfetto/internal/tracing/config"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/ipc"
	"github.com/etsangsplk/perfetto/internal/tracing/service"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
	"github.com/etsangsplk/perfetto/internal/tracing/tracewriter"
	"github.com/etsangsplk/perfetto/internal/tracing/watchdog"
)

func main() {
	pageSize := flag.Int("page-size", 4096, "shared-memory page size in bytes")
	numPages := flag.Int("num-pages", 16, "number of pages in the producer's shared-memory region")
	bufferSize := flag.Uint("buffer-size", 1<<20, "log buffer size in bytes")
	packetCount := flag.Int("packets", 100, "number of packets to write")
	packetSize := flag.Int("packet-size", 200, "size of each packet's payload in bytes")
	dataSourceName := flag.String("data-source", "tracedctl_demo", "name of the demonstration data source")
	maxRSSMB := flag.Uint64("max-rss-mb", 0, "watchdog resident-set-size limit in MB, 0 for no limit")
	flag.Parse()

	var limits watchdog.Limits
	if *maxRSSMB > 0 {
		limits.MaxRSSBytes = *maxRSSMB << 20
	}
	wd := watchdog.New(limits)
	defer wd.Stop()

	svc := service.New(nil, wd)
	defer svc.Close()

	region, err := shmabi.NewRegion(shmabi.RegionLayout{
		PageSize: *pageSize,
		NumPages: *numPages,
		Layout:   shmabi.Layout4Chunks,
	})
	if err != nil {
		log.Fatalf("tracedctl: NewRegion: %v", err)
	}
	defer region.Close()

	producerTransport := &loggingTransport{role: "producer"}
	producer := svc.NewProducerEndpoint(producerTransport, region)
	fmt.Printf("connected producer %d over a %d-page, %d-byte-page region\n", producer.ID(), *numPages, *pageSize)

	if _, err := producer.RegisterDataSource(*dataSourceName, false); err != nil {
		log.Fatalf("tracedctl: RegisterDataSource: %v", err)
	}
	fmt.Printf("registered data source %q\n", *dataSourceName)

	consumerTransport := &loggingTransport{role: "consumer"}
	consumer := svc.NewConsumerEndpoint()
	cfg := config.TraceConfig{
		Buffers: []config.BufferConfig{{SizeBytes: uint32(*bufferSize), Fill: config.FillRing}},
		DataSources: []config.DataSourceConfig{
			{Name: *dataSourceName, TargetBuffer: 0},
		},
		MaxSHMSizeBytes: uint32(*pageSize * *numPages),
	}
	sessionID, err := consumer.Configure(cfg, consumerTransport)
	if err != nil {
		log.Fatalf("tracedctl: Configure: %v", err)
	}
	fmt.Printf("configured session %d with a %d-byte ring buffer\n", sessionID, *bufferSize)

	if err := consumer.Enable(); err != nil {
		log.Fatalf("tracedctl: Enable: %v", err)
	}

	// A real producer acks StartDataSource asynchronously once its own data
	// source has spun up; here we just ack every StartDataSource this
	// process's own transport observed being sent.
	for _, msg := range producerTransport.drainByType(ipc.MessageStartDataSource) {
		start := msg.(ipc.StartDataSource)
		producer.NotifyDataSourceStarted(start.InstanceID)
	}

	if !waitForState(svc, sessionID, service.SessionEnabled, time.Second) {
		log.Fatalf("tracedctl: session %d never reached Enabled", sessionID)
	}
	fmt.Printf("session %d enabled\n", sessionID)

	arb := producer.Arbiter()
	writer := tracewriter.New(arb, core.WriterKey{Producer: producer.ID(), Writer: 1}, core.BufferID(0), *packetSize)
	payload := bytes.Repeat([]byte{0xAB}, *packetSize)
	for i := 0; i < *packetCount; i++ {
		h := writer.NewTracePacket()
		h.Write(payload)
		h.Close()
	}
	writer.Flush()
	fmt.Printf("wrote %d packets of %d bytes each\n", *packetCount, *packetSize)

	for _, p := range writer.PendingPatches() {
		if err := producer.ApplyPatch(core.BufferID(0), p); err != nil {
			log.Printf("tracedctl: ApplyPatch: %v", err)
		}
	}

	// Give the drain loop a few ticks to copy committed chunks into the log
	// buffer before reading it back.
	time.Sleep(50 * time.Millisecond)

	// Each ReadBuffers call is a fresh, non-consuming pass over the buffer,
	// so one call returns every packet it holds.
	batches, err := consumer.ReadBuffers(64)
	if err != nil {
		log.Fatalf("tracedctl: ReadBuffers: %v", err)
	}
	totalPackets := 0
	for _, b := range batches {
		totalPackets += len(b.Packets)
	}
	fmt.Printf("read back %d packets\n", totalPackets)

	flushID, err := consumer.Flush(time.Second)
	if err != nil {
		log.Fatalf("tracedctl: Flush: %v", err)
	}
	fmt.Printf("flush %d requested\n", flushID)
	for range producerTransport.drainByType(ipc.MessageProducerFlushRequest) {
		producer.NotifyFlushComplete(flushID)
	}

	if err := consumer.Disable(); err != nil {
		log.Fatalf("tracedctl: Disable: %v", err)
	}
	for _, msg := range producerTransport.drainByType(ipc.MessageStopDataSource) {
		stop := msg.(ipc.StopDataSource)
		producer.NotifyDataSourceStopped(stop.InstanceID)
	}
	if !waitForState(svc, sessionID, service.SessionDisabled, time.Second) {
		log.Fatalf("tracedctl: session %d never reached Disabled", sessionID)
	}

	if err := consumer.FreeBuffers(); err != nil {
		log.Fatalf("tracedctl: FreeBuffers: %v", err)
	}
	fmt.Println("session torn down cleanly")
}

func waitForState(svc *service.Core, id core.SessionID, want service.SessionState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if state, err := svc.SessionState(id); err == nil && state == want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// loggingTransport implements both service.ProducerTransport and
// service.ConsumerTransport, printing each message as it is sent and
// keeping a queue tracedctl can drain to synthesize acks for the producer
// and consumer connections this single process is standing in for both
// halves of.
type loggingTransport struct {
	role string
	sent []sentMessage
}

type sentMessage struct {
	typ ipc.MessageType
	msg any
}

func (t *loggingTransport) Send(msgType ipc.MessageType, msg any) error {
	fmt.Printf("[%s] -> %v\n", t.role, msgType)
	t.sent = append(t.sent, sentMessage{typ: msgType, msg: msg})
	return nil
}

func (t *loggingTransport) drainByType(typ ipc.MessageType) []any {
	var out []any
	remaining := t.sent[:0]
	for _, m := range t.sent {
		if m.typ == typ {
			out = append(out, m.msg)
		} else {
			remaining = append(remaining, m)
		}
	}
	t.sent = remaining
	return out
}
