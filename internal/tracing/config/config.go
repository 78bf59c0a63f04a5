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

package config

import (
	"fmt"
	"math/bits"

	"github.com/sugawarayuuta/sonnet"

	"github.com/etsangsplk/perfetto/internal/tracing/core"
)

// FillPolicy governs what a log buffer does once it has no room for a new
// chunk.
type FillPolicy uint8

const (
	// FillRing evicts the oldest chunks to make room, per §4.2.
	FillRing FillPolicy = iota
	// FillDiscard is parsed, validated and serialized like FillRing, but no
	// log buffer reads the policy: a full buffer evicts its oldest chunks
	// whichever value is set, and incoming chunks are not dropped.
	FillDiscard
)

func (f FillPolicy) String() string {
	switch f {
	case FillRing:
		return "ring"
	case FillDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the policy by name rather than its numeric value, so
// a TraceConfig on disk stays readable and forward-compatible with an
// added policy value.
func (f FillPolicy) MarshalJSON() ([]byte, error) {
	return sonnet.Marshal(f.String())
}

// UnmarshalJSON accepts either the policy's name or, for forward
// compatibility, an already-numeric encoding.
func (f *FillPolicy) UnmarshalJSON(data []byte) error {
	var name string
	if err := sonnet.Unmarshal(data, &name); err == nil {
		switch name {
		case "ring":
			*f = FillRing
		case "discard":
			*f = FillDiscard
		default:
			return fmt.Errorf("config: unknown fill policy %q", name)
		}
		return nil
	}
	var n uint8
	if err := sonnet.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FillPolicy(n)
	return nil
}

// BufferConfig describes one log buffer a session allocates, per §3.1.
type BufferConfig struct {
	SizeBytes uint32     `json:"size_bytes"`
	Fill      FillPolicy `json:"fill_policy"`
}

// DataSourceConfig describes one data source instance a session enables,
// per §3.1. ConfigBlob is an opaque, data-source-specific payload this
// layer never interprets.
type DataSourceConfig struct {
	Name               string   `json:"name"`
	ProducerNameFilter []string `json:"producer_name_filter,omitempty"`
	ConfigBlob         []byte   `json:"config_blob,omitempty"`
	TargetBuffer       core.BufferID `json:"target_buffer"`
}

// TraceConfig is the full configuration a consumer submits to start a
// session, per §3.1.
type TraceConfig struct {
	Buffers         []BufferConfig     `json:"buffers"`
	DataSources     []DataSourceConfig `json:"data_sources"`
	DurationMS      uint32             `json:"duration_ms,omitempty"`
	FlushPeriodMS   uint32             `json:"flush_period_ms,omitempty"`
	MaxSHMSizeBytes uint32             `json:"max_shm_size_bytes"`
}

// minSHMPageSize is the smallest page size the shared-memory ABI allows
// (shmabi.MinPageSize duplicated here to avoid this package depending on
// the SMA layer merely for one constant).
const minSHMPageSize = 4096

// DefaultTraceConfig returns a single-ring-buffer configuration with no
// duration limit and consumer-driven-only flushing, used by the CLI and by
// tests that don't care about buffer sizing specifics.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Buffers: []BufferConfig{
			{SizeBytes: 1 << 20, Fill: FillRing},
		},
		MaxSHMSizeBytes: 1 << 20,
	}
}

// Validate performs the checks of §3.1 and returns a KindInvalidConfig
// *core.Error wrapping the first violation found.
func Validate(cfg TraceConfig) error {
	const op = "config.Validate"

	if len(cfg.Buffers) == 0 {
		return core.New(core.KindInvalidConfig, op, fmt.Errorf("at least one buffer is required"))
	}
	for i, b := range cfg.Buffers {
		if b.SizeBytes == 0 {
			return core.New(core.KindInvalidConfig, op, fmt.Errorf("buffer %d: size_bytes must be nonzero", i))
		}
	}
	for _, ds := range cfg.DataSources {
		if int(ds.TargetBuffer) >= len(cfg.Buffers) {
			return core.New(core.KindInvalidConfig, op, fmt.Errorf(
				"data source %q: target_buffer %d does not index any configured buffer", ds.Name, ds.TargetBuffer))
		}
	}
	if cfg.MaxSHMSizeBytes < minSHMPageSize || bits.OnesCount32(cfg.MaxSHMSizeBytes) != 1 {
		return core.New(core.KindInvalidConfig, op, fmt.Errorf(
			"max_shm_size_bytes %d must be a power of two no smaller than %d", cfg.MaxSHMSizeBytes, minSHMPageSize))
	}
	// FlushPeriodMS == 0 is valid: it means consumer-driven flushing only.
	return nil
}

// LoadJSON decodes a TraceConfig from data and validates it in one step,
// the form consumer.configure and the CLI both use.
func LoadJSON(data []byte) (TraceConfig, error) {
	var cfg TraceConfig
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return TraceConfig{}, core.New(core.KindInvalidConfig, "config.LoadJSON", err)
	}
	if err := Validate(cfg); err != nil {
		return TraceConfig{}, err
	}
	return cfg, nil
}

// ToJSON encodes cfg without re-validating it; callers that built cfg
// through this package have already validated it at LoadJSON/Validate time.
func ToJSON(cfg TraceConfig) ([]byte, error) {
	return sonnet.Marshal(cfg)
}
