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
	"fmt"

	"github.com/etsangsplk/perfetto/internal/tracing/arbiter"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/shmabi"
	"github.com/etsangsplk/perfetto/internal/tracing/tracewriter"
)

// RegisterDataSource implements §6's RegisterDataSource: a producer
// declares one data source kind it can feed, scoped to that producer
// (§3: "DataSourceID ... per producer").
func (c *Core) RegisterDataSource(producer core.ProducerID, name string, willNotifyOnStop bool) (core.DataSourceID, error) {
	var id core.DataSourceID
	var err error
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			err = core.New(core.KindTransport, "service.RegisterDataSource", fmt.Errorf("unknown producer %d", producer))
			return
		}
		id = p.nextDataSourceID
		p.nextDataSourceID++
		p.dataSourceIDs[name] = id
		p.dataSourceNames[id] = name
		p.willNotifyOnStop[id] = willNotifyOnStop
	})
	return id, err
}

// UnregisterDataSource implements §6's UnregisterDataSource. Any instances
// of this source currently active in a session are left running until the
// session itself stops them; only future EnableSession calls
// stop considering this producer for the named source.
func (c *Core) UnregisterDataSource(producer core.ProducerID, id core.DataSourceID) error {
	var err error
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			err = core.New(core.KindTransport, "service.UnregisterDataSource", fmt.Errorf("unknown producer %d", producer))
			return
		}
		name, ok := p.dataSourceNames[id]
		if !ok {
			return
		}
		delete(p.dataSourceNames, id)
		delete(p.dataSourceIDs, name)
		delete(p.willNotifyOnStop, id)
	})
	return err
}

// NotifyDataSourceStarted records a producer's ack of a previously sent
// StartDataSource, driving the Enabling → Enabled transition of §4.5 once
// every instance of the session has acked.
func (c *Core) NotifyDataSourceStarted(producer core.ProducerID, instanceID core.DataSourceInstanceID) {
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			return
		}
		inst, ok := p.instances[instanceID]
		if !ok {
			return
		}
		inst.started = true
		s := inst.session
		if s == nil || s.state != SessionEnabling {
			return
		}
		for _, other := range s.instances {
			if !other.started {
				return
			}
		}
		s.state = SessionEnabled
	})
}

// NotifyDataSourceStopped records a producer's ack of a previously sent
// StopDataSource. If this was the session's last outstanding instance
// while Disabling, the session completes its teardown immediately instead
// of waiting out the disable deadline.
func (c *Core) NotifyDataSourceStopped(producer core.ProducerID, instanceID core.DataSourceInstanceID) {
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			return
		}
		inst, ok := p.instances[instanceID]
		if !ok {
			return
		}
		delete(p.instances, instanceID)
		s := inst.session
		if s == nil {
			return
		}
		delete(s.instances, instanceID)
		if s.state == SessionDisabling && len(s.instances) == 0 {
			c.finishDisable(s)
		}
	})
}

// NotifyFlushAck records a producer's ack of a previously sent
// ProducerFlushRequest for one or more of its instances, driving the
// Flushing → Enabled transition of §4.5 once every pending instance has
// acked.
func (c *Core) NotifyFlushAck(producer core.ProducerID, flushID uint64) {
	c.do(func() {
		p, ok := c.producers[producer]
		if !ok {
			return
		}
		for instID := range p.instances {
			c.ackFlushInstance(instID, flushID)
		}
	})
}

func (c *Core) ackFlushInstance(instID core.DataSourceInstanceID, flushID uint64) {
	for _, s := range c.sessions {
		if s.flush == nil || s.flush.id != flushID {
			continue
		}
		if _, pending := s.flush.pending[instID]; !pending {
			continue
		}
		delete(s.flush.pending, instID)
		if len(s.flush.pending) == 0 {
			c.completeFlush(s)
		}
		return
	}
}

// ProducerEndpoint is the service-owned, stable-id facade a producer
// connection drives, per §9's "Cyclic ownership" design note: the
// connection holds this value, not a pointer into Core's internal maps.
type ProducerEndpoint struct {
	core *Core
	id   core.ProducerID
}

// NewProducerEndpoint completes InitializeConnection for a producer whose
// shared-memory region has already been created (service side) or opened
// (producer side, out of scope here) and starts draining it.
func (c *Core) NewProducerEndpoint(transport ProducerTransport, region *shmabi.Region) *ProducerEndpoint {
	return &ProducerEndpoint{core: c, id: c.ConnectProducer(transport, region)}
}

// ID returns the stable ProducerID this endpoint was assigned.
func (p *ProducerEndpoint) ID() core.ProducerID { return p.id }

// Arbiter returns the arbiter.Arbiter the Core itself drains for this
// producer's region, so a TraceWriter on the producer side of the process
// (or, as here, a same-process test standing in for one) shares the exact
// allocator the drain loop is already watching instead of racing a second
// one over the same pages.
func (p *ProducerEndpoint) Arbiter() *arbiter.Arbiter {
	var a *arbiter.Arbiter
	p.core.do(func() {
		if ps, ok := p.core.producers[p.id]; ok {
			a = ps.arb
		}
	})
	return a
}

// RegisterDataSource is the producer-facing entry point for §6's
// RegisterDataSource RPC.
func (p *ProducerEndpoint) RegisterDataSource(name string, willNotifyOnStop bool) (core.DataSourceID, error) {
	return p.core.RegisterDataSource(p.id, name, willNotifyOnStop)
}

// UnregisterDataSource is the producer-facing entry point for §6's
// UnregisterDataSource RPC.
func (p *ProducerEndpoint) UnregisterDataSource(id core.DataSourceID) error {
	return p.core.UnregisterDataSource(p.id, id)
}

// NotifySharedMemoryUpdate records the producer's hint of which pages it
// touched. The arbiter's own batched notifier already drains every commit
// on its tick regardless, so per §6 this is advisory only.
func (p *ProducerEndpoint) NotifySharedMemoryUpdate(pagesBitmap []byte) {
	p.core.logger.Printf("producer %d: shared-memory update hint, %d bitmap bytes", p.id, len(pagesBitmap))
}

// NotifyDataSourceStarted is the producer-facing ack for a previously
// received StartDataSource.
func (p *ProducerEndpoint) NotifyDataSourceStarted(instanceID core.DataSourceInstanceID) {
	p.core.NotifyDataSourceStarted(p.id, instanceID)
}

// NotifyDataSourceStopped is the producer-facing ack for a previously
// received StopDataSource.
func (p *ProducerEndpoint) NotifyDataSourceStopped(instanceID core.DataSourceInstanceID) {
	p.core.NotifyDataSourceStopped(p.id, instanceID)
}

// NotifyFlushComplete is the producer-facing ack for a previously received
// Flush.
func (p *ProducerEndpoint) NotifyFlushComplete(flushID uint64) {
	p.core.NotifyFlushAck(p.id, flushID)
}

// ApplyPatch routes one tracewriter.Patch this producer's TraceWriter
// could not backfill directly in shared memory to the log buffer it
// targets within whatever session is currently reading this producer.
func (p *ProducerEndpoint) ApplyPatch(target core.BufferID, patch tracewriter.Patch) error {
	return p.core.ApplyProducerPatch(patch.Writer.Producer, target, patch.Writer.Writer, patch.Chunk, patch.Offset, patch.Value)
}

// Disconnect tears down this producer's endpoint and drain loop.
func (p *ProducerEndpoint) Disconnect() {
	p.core.DisconnectProducer(p.id)
}
