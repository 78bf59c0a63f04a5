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

package service

import (
	"context"
	"time"

	"github.com/etsangsplk/perfetto/internal/tracing/arbiter"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
	"github.com/etsangsplk/perfetto/internal/tracing/watchdog"
)

// drainTick is how often each producer's arbiter batches its commit
// notifications, per §4.3 ("batched, not per-chunk"). A short tick keeps
// consumer-visible latency low without the per-event syscall the batching
// exists to avoid.
const drainTick = 5 * time.Millisecond

// enableDeadline and disableDeadline bound how long Enabling/Disabling
// waits for every producer to ack before proceeding anyway (§4.5: "late
// acks are accepted silently"). Package-level vars, like watchdog's
// sampleRSS/sampleFD, so tests can shrink them instead of sleeping out a
// production-sized deadline.
var (
	enableDeadline  = 2 * time.Second
	disableDeadline = 2 * time.Second
)

// producerState is the service's private bookkeeping for one connected
// producer: its shared-memory region, its data source registrations, and
// the active instances it is currently feeding.
type producerState struct {
	id        core.ProducerID
	transport ProducerTransport
	region    *shmabi.Region
	arb       *arbiter.Arbiter
	cancel    context.CancelFunc

	dataSourceIDs    map[string]core.DataSourceID
	dataSourceNames  map[core.DataSourceID]string
	willNotifyOnStop map[core.DataSourceID]bool
	nextDataSourceID core.DataSourceID

	instances map[core.DataSourceInstanceID]*instanceState

	// activeSession is the session whose buffers this producer's chunks
	// are currently routed into. A real deployment can feed several
	// concurrent sessions from one producer; this core resolves a
	// producer's target-buffer indices against whichever session most
	// recently started an instance on it, documented as an Open Question
	// resolution in the design ledger.
	activeSession *Session
}

type instanceState struct {
	id      core.DataSourceInstanceID
	name    string
	dsID    core.DataSourceID
	session *Session
	started bool
}

// Core is the Service Core of §4.5/§5: a single task-runner goroutine that
// owns every producer, session, and log buffer. All exported methods
// enqueue their work onto that goroutine and block for the result, so
// callers never observe a partially applied mutation.
type Core struct {
	logger   core.Logger
	watchdog *watchdog.Watchdog

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	producers      map[core.ProducerID]*producerState
	nextProducerID core.ProducerID

	sessions      map[core.SessionID]*Session
	nextSessionID core.SessionID

	nextInstanceID core.DataSourceInstanceID
	nextFlushID    uint64
}

// New starts a Core's task runner. wd may be nil if no resource limits are
// enforced; logger may be nil to use core.DefaultLogger.
func New(logger core.Logger, wd *watchdog.Watchdog) *Core {
	if logger == nil {
		logger = core.DefaultLogger
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		logger:    logger,
		watchdog:  wd,
		cmds:      make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		producers: make(map[core.ProducerID]*producerState),
		sessions:  make(map[core.SessionID]*Session),
	}
	go c.run()
	return c
}

// run is the task runner itself: the only goroutine that ever touches a
// producerState, Session, or LogBuffer after construction.
func (c *Core) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.cmds:
			fn()
		}
	}
}

// do enqueues fn onto the task runner and blocks until it has run,
// giving every exported Core method call-looks-synchronous semantics
// over the one runner goroutine, per §5.
func (c *Core) do(fn func()) {
	reply := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(reply) }:
	case <-c.ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-c.ctx.Done():
	}
}

// Close stops the task runner and every per-producer drain loop it
// started. It does not wait for in-flight producer sockets to drain;
// callers that need a graceful teardown should Disable every session
// first.
func (c *Core) Close() {
	c.cancel()
	<-c.done
}

// ConnectProducer registers a newly handshaken producer and starts
// draining its shared-memory region: it implements the service side of
// §6's InitializeConnection, after the region itself has been created or
// attached by the caller (shmabi.CreateNamed / shmabi.NewRegion).
func (c *Core) ConnectProducer(transport ProducerTransport, region *shmabi.Region) core.ProducerID {
	var id core.ProducerID
	c.do(func() {
		id = c.nextProducerID
		c.nextProducerID++
		arb := arbiter.New(region)
		drainCtx, cancel := context.WithCancel(c.ctx)
		p := &producerState{
			id:               id,
			transport:        transport,
			region:           region,
			arb:              arb,
			cancel:           cancel,
			dataSourceIDs:    make(map[string]core.DataSourceID),
			dataSourceNames:  make(map[core.DataSourceID]string),
			willNotifyOnStop: make(map[core.DataSourceID]bool),
			instances:        make(map[core.DataSourceInstanceID]*instanceState),
		}
		c.producers[id] = p
		go arb.Run(drainCtx, producerNotifier{core: c, producer: id}, drainTick)
	})
	return id
}

// DisconnectProducer tears down a producer's drain loop and, per §4.5,
// removes only that producer's instances from whatever sessions they
// belonged to — the sessions themselves stay Enabled.
func (c *Core) DisconnectProducer(id core.ProducerID) {
	c.do(func() {
		p, ok := c.producers[id]
		if !ok {
			return
		}
		p.cancel()
		for instID, inst := range p.instances {
			if inst.session != nil {
				delete(inst.session.instances, instID)
			}
		}
		delete(c.producers, id)
	})
}

// producerNotifier adapts one producer's arbiter.Run callback onto the
// Core's task runner: Notify fires on the arbiter's own ticker goroutine,
// so it hands the batch to the runner via do rather than touching any
// producerState or Session directly.
type producerNotifier struct {
	core     *Core
	producer core.ProducerID
}

func (n producerNotifier) Notify(changed []arbiter.ChunkLocation) {
	n.core.do(func() {
		n.core.drainChunks(n.producer, changed)
	})
}

// drainChunks copies every newly committed chunk location into whichever
// log buffer its target-buffer index names in the producer's active
// session, implementing the data-flow of §2: "SMA-Arb signals SC → SC
// copies each committed chunk into the appropriate LB."
func (c *Core) drainChunks(producerID core.ProducerID, locations []arbiter.ChunkLocation) {
	p, ok := c.producers[producerID]
	if !ok {
		return
	}
	for _, loc := range locations {
		page := p.region.Page(loc.Page)
		hdr := page.Header(loc.Chunk)
		writerID, chunkID, target, packetCount, flags, acquired := hdr.TryAcquireForRead()
		if !acquired {
			// Already claimed by an earlier drain pass, or a stale
			// notification for a chunk the producer has since reused;
			// neither is an error.
			continue
		}
		payload := page.Payload(loc.Chunk)

		s := p.activeSession
		if s == nil {
			hdr.Release()
			continue
		}
		lb, ok := s.buffers[target]
		if !ok {
			c.logger.Printf("service: producer %d chunk targets unregistered buffer %d", producerID, target)
			hdr.Release()
			continue
		}
		if err := lb.CopyChunkIn(producerID, writerID, chunkID, flags, uint8(packetCount), payload); err != nil {
			c.logger.Printf("service: CopyChunkIn producer %d writer %d chunk %d: %v", producerID, writerID, chunkID, err)
		}
		hdr.Release()
	}
}

// ApplyProducerPatch applies a tracewriter.Patch that could not be
// backfilled directly in shared memory because its owning chunk had
// already been claimed by the service (§4.4's deferred-patch path): it
// routes the patch to the LogBuffer of whichever session the producer is
// currently feeding, via logbuffer.LogBuffer.TryPatch.
func (c *Core) ApplyProducerPatch(producer core.ProducerID, target core.BufferID, writer core.WriterID, chunk core.ChunkID, offset int, value [4]byte) error {
	var err error
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			err = core.ErrNotPatchable
			return
		}
		s := p.activeSession
		if s == nil {
			err = core.ErrNotPatchable
			return
		}
		lb, ok := s.buffers[target]
		if !ok {
			err = core.ErrNotPatchable
			return
		}
		err = lb.TryPatch(producer, writer, chunk, offset, value)
	})
	return err
}
