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
	"time"

	"github.com/etsangsplk/perfetto/internal/tracing/config"
	"github.com/etsangsplk/perfetto/internal/tracing/core"
	"github.com/etsangsplk/perfetto/internal/tracing/ipc"
	"github.com/etsangsplk/perfetto/internal/tracing/logbuffer"
)

// SessionState is one state of the session state machine in §4.5's ASCII
// diagram.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConfigured
	SessionEnabling
	SessionEnabled
	SessionFlushing
	SessionDisabling
	SessionDisabled
	SessionError
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConfigured:
		return "configured"
	case SessionEnabling:
		return "enabling"
	case SessionEnabled:
		return "enabled"
	case SessionFlushing:
		return "flushing"
	case SessionDisabling:
		return "disabling"
	case SessionDisabled:
		return "disabled"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// flushState tracks one in-flight consumer.flush(id) call: the set of
// data-source instances still expected to ack before notify_flush_complete
// can fire.
type flushState struct {
	id      uint64
	pending map[core.DataSourceInstanceID]bool
	partial bool
}

// Session is the unit of tracing described in §4.5: one consumer's
// configured trace, its allocated log buffers, and the data-source
// instances feeding them. It is only ever mutated on the Core's task
// runner.
type Session struct {
	id       core.SessionID
	state    SessionState
	config   config.TraceConfig
	consumer ConsumerTransport

	buffers   map[core.BufferID]*logbuffer.LogBuffer
	instances map[core.DataSourceInstanceID]*instanceState

	flush *flushState
}

// ID returns the session's stable identifier.
func (s *Session) ID() core.SessionID { return s.id }

// State returns the session's current state machine position.
func (s *Session) State() SessionState { return s.state }

// ConfigureSession implements §4.5's Idle → Configured transition: it
// validates cfg via config.Validate and, on success, creates a new session
// in the Configured state. consumer receives this session's
// notify_flush_complete and ReadBuffers deliveries.
func (c *Core) ConfigureSession(cfg config.TraceConfig, consumer ConsumerTransport) (core.SessionID, error) {
	var id core.SessionID
	var err error
	c.do(func() {
		if verr := config.Validate(cfg); verr != nil {
			err = verr
			return
		}
		id = c.nextSessionID
		c.nextSessionID++
		c.sessions[id] = &Session{
			id:        id,
			state:     SessionConfigured,
			config:    cfg,
			consumer:  consumer,
			instances: make(map[core.DataSourceInstanceID]*instanceState),
		}
	})
	return id, err
}

// EnableSession implements §4.5's Configured → Enabling transition: it
// allocates the session's log buffers and fans out SetupDataSource then
// StartDataSource to every producer registered for a referenced data
// source. It consults the watchdog first, per §9's "externalise as a
// resource-limit monitor... the service core consults Tripped() and
// refuses new work."
func (c *Core) EnableSession(id core.SessionID) error {
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}
		if s.state != SessionConfigured {
			err = core.New(core.KindInvalidConfig, "service.EnableSession", fmt.Errorf("session %d is %s, not configured", id, s.state))
			return
		}
		if c.watchdog != nil && c.watchdog.Tripped() {
			s.state = SessionError
			err = core.New(core.KindResourceExhaustion, "service.EnableSession", fmt.Errorf("watchdog limit tripped"))
			return
		}

		buffers := make(map[core.BufferID]*logbuffer.LogBuffer, len(s.config.Buffers))
		for i, bc := range s.config.Buffers {
			lb, lerr := logbuffer.Create(int(bc.SizeBytes))
			if lerr != nil {
				s.state = SessionError
				err = lerr
				return
			}
			buffers[core.BufferID(i)] = lb
		}
		s.buffers = buffers
		s.state = SessionEnabling

		for _, ds := range s.config.DataSources {
			for _, p := range c.producers {
				dsID, registered := p.dataSourceIDs[ds.Name]
				if !registered {
					continue
				}
				instID := c.nextInstanceID
				c.nextInstanceID++
				inst := &instanceState{id: instID, name: ds.Name, dsID: dsID, session: s}
				p.instances[instID] = inst
				s.instances[instID] = inst
				p.activeSession = s

				p.transport.Send(ipc.MessageSetupDataSource, ipc.SetupDataSource{Version: 1, InstanceID: instID, Config: ds})
				p.transport.Send(ipc.MessageStartDataSource, ipc.StartDataSource{Version: 1, InstanceID: instID, Config: ds})
			}
		}

		if len(s.instances) == 0 {
			s.state = SessionEnabled
			return
		}
		go c.scheduleEnableDeadline(id, enableDeadline)
	})
	return err
}

func (c *Core) scheduleEnableDeadline(id core.SessionID, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.ctx.Done():
		return
	}
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok || s.state != SessionEnabling {
			return
		}
		// Late acks are accepted silently per §4.5; we simply stop
		// waiting for the stragglers.
		s.state = SessionEnabled
	})
}

// FlushSession implements §4.5's Enabled → Flushing transition: it
// broadcasts a ProducerFlushRequest to every producer with an instance in
// this session and waits (up to timeout) for every instance to ack before
// emitting notify_flush_complete to the consumer.
func (c *Core) FlushSession(id core.SessionID, timeout time.Duration) (uint64, error) {
	var flushID uint64
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}
		if s.state != SessionEnabled {
			err = core.New(core.KindInvalidConfig, "service.FlushSession", fmt.Errorf("session %d is %s, not enabled", id, s.state))
			return
		}

		flushID = c.nextFlushID
		c.nextFlushID++
		fs := &flushState{id: flushID, pending: make(map[core.DataSourceInstanceID]bool, len(s.instances))}
		for instID := range s.instances {
			fs.pending[instID] = true
		}

		notified := make(map[core.ProducerID]bool)
		for instID := range s.instances {
			for _, p := range c.producers {
				if _, ok := p.instances[instID]; !ok {
					continue
				}
				if notified[p.id] {
					continue
				}
				notified[p.id] = true
				p.transport.Send(ipc.MessageProducerFlushRequest, ipc.ProducerFlushRequest{Version: 1, FlushID: flushID})
			}
		}

		s.state = SessionFlushing
		s.flush = fs
		if len(fs.pending) == 0 {
			c.completeFlush(s)
			return
		}
		go c.scheduleFlushDeadline(id, flushID, timeout)
	})
	return flushID, err
}

func (c *Core) scheduleFlushDeadline(id core.SessionID, flushID uint64, timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.ctx.Done():
		return
	}
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok || s.flush == nil || s.flush.id != flushID {
			return
		}
		s.flush.partial = true
		c.completeFlush(s)
	})
}

// completeFlush emits notify_flush_complete to the session's consumer and
// returns the session to Enabled. Must run on the task runner.
func (c *Core) completeFlush(s *Session) {
	if s.flush == nil {
		return
	}
	resp := ipc.ConsumerFlushResponse{Version: 1, FlushID: s.flush.id, Partial: s.flush.partial}
	s.flush = nil
	s.state = SessionEnabled
	if s.consumer != nil {
		s.consumer.Send(ipc.MessageConsumerFlushResponse, resp)
	}
}

// DisableSession implements §4.5's Enabled → Disabling transition: it
// broadcasts StopDataSource to every instance's producer and waits (up to
// a bounded deadline) for the session to drain before declaring it
// Disabled.
func (c *Core) DisableSession(id core.SessionID) error {
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}
		if s.state != SessionEnabled {
			err = core.New(core.KindInvalidConfig, "service.DisableSession", fmt.Errorf("session %d is %s, not enabled", id, s.state))
			return
		}

		s.state = SessionDisabling
		for instID := range s.instances {
			for _, p := range c.producers {
				inst, ok := p.instances[instID]
				if !ok {
					continue
				}
				if p.activeSession == s {
					p.activeSession = nil
				}
				p.transport.Send(ipc.MessageStopDataSource, ipc.StopDataSource{Version: 1, InstanceID: instID})
				// A source registered with will_notify_on_stop=false never
				// sends NotifyDataSourceStopped, so its instance is
				// considered stopped as soon as the request goes out.
				if !p.willNotifyOnStop[inst.dsID] {
					delete(p.instances, instID)
					delete(s.instances, instID)
				}
			}
		}

		if len(s.instances) == 0 {
			c.finishDisable(s)
			return
		}
		go c.scheduleDisableDeadline(id, disableDeadline)
	})
	return err
}

func (c *Core) scheduleDisableDeadline(id core.SessionID, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.ctx.Done():
		return
	}
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok || s.state != SessionDisabling {
			return
		}
		c.finishDisable(s)
	})
}

// finishDisable moves s to Disabled and drops any instances it is still
// waiting on (late stop-acks are accepted silently, same as Enabling).
// Must run on the task runner.
func (c *Core) finishDisable(s *Session) {
	for instID := range s.instances {
		for _, p := range c.producers {
			delete(p.instances, instID)
		}
	}
	s.instances = nil
	s.state = SessionDisabled
}

// DestroySession removes a Disabled session's bookkeeping entirely,
// implementing §6's FreeBuffers and §3's "(destroyed)" terminal state.
func (c *Core) DestroySession(id core.SessionID) error {
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}
		if s.state != SessionDisabled && s.state != SessionError {
			err = core.New(core.KindInvalidConfig, "service.DestroySession", fmt.Errorf("session %d is %s, not disabled", id, s.state))
			return
		}
		delete(c.sessions, id)
	})
	return err
}

// SessionState returns a session's current state, for diagnostics and
// tests.
func (c *Core) SessionState(id core.SessionID) (SessionState, error) {
	var state SessionState
	var err error
	c.do(func() {
		s, ok := c.sessions[id]
		if !ok {
			err = fmt.Errorf("service: unknown session %d", id)
			return
		}
		state = s.state
	})
	return state, err
}
