package neural

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// CheckpointVersion is written into every new checkpoint. Version 1 is the
// legacy bare weight array.
const CheckpointVersion = 2

// ErrCheckpointFormat is returned for data that is neither a checkpoint
// object nor a legacy weight array.
var ErrCheckpointFormat = errors.New("unrecognized checkpoint format")

// Checkpoint is the persisted identity of a policy: weights plus normalizer
// statistics.
type Checkpoint struct {
	Version       int           `json:"version"`
	Architecture  *Architecture `json:"architecture,omitempty"`
	Weights       []float64     `json:"weights"`
	ObsMean       []float64     `json:"obs_mean"`
	ObsMeanAbsDev []float64     `json:"obs_mean_abs_dev"`
	ObsCount      int           `json:"obs_count"`
}

// Legacy reports whether the checkpoint came from a bare weight array.
func (c Checkpoint) Legacy() bool { return c.Version < 2 }

// Checkpoint captures the policy's weights and normalizer.
func (p *Policy) Checkpoint() Checkpoint {
	arch := p.arch
	st := p.norm.State()
	return Checkpoint{
		Version:       CheckpointVersion,
		Architecture:  &arch,
		Weights:       p.Params(),
		ObsMean:       st.Mean,
		ObsMeanAbsDev: st.Dev,
		ObsCount:      st.Count,
	}
}

// LoadCheckpoint restores weights and normalizer. A legacy checkpoint carries
// no statistics, so the normalizer is reset to identity. In the object form a
// missing statistic keeps its identity default; a present one must match the
// input width.
func (p *Policy) LoadCheckpoint(c Checkpoint) error {
	if c.Architecture != nil && *c.Architecture != p.arch {
		return fmt.Errorf("checkpoint architecture %+v does not match policy %+v: %w", *c.Architecture, p.arch, ErrParamCount)
	}
	for _, stat := range [][]float64{c.ObsMean, c.ObsMeanAbsDev} {
		if !c.Legacy() && len(stat) != 0 && len(stat) != p.arch.Inputs {
			return fmt.Errorf("checkpoint normalizer has %d/%d dims, want %d: %w",
				len(c.ObsMean), len(c.ObsMeanAbsDev), p.arch.Inputs, ErrCheckpointFormat)
		}
	}
	if err := p.SetParams(c.Weights); err != nil {
		return err
	}
	p.norm.Reset()
	if c.Legacy() {
		return nil
	}
	p.norm.SetState(NormalizerState{Mean: c.ObsMean, Dev: c.ObsMeanAbsDev, Count: c.ObsCount})
	return nil
}

// MarshalCheckpoint encodes a checkpoint as indented JSON.
func MarshalCheckpoint(c Checkpoint) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// UnmarshalCheckpoint decodes either the versioned object form or a legacy
// bare weight array. Anything else fails with ErrCheckpointFormat.
func UnmarshalCheckpoint(data []byte) (Checkpoint, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Checkpoint{}, fmt.Errorf("empty input: %w", ErrCheckpointFormat)
	}

	switch trimmed[0] {
	case '[':
		var weights []float64
		if err := json.Unmarshal(trimmed, &weights); err != nil {
			return Checkpoint{}, fmt.Errorf("legacy weights: %v: %w", err, ErrCheckpointFormat)
		}
		return Checkpoint{Version: 1, Weights: weights}, nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint object: %v: %w", err, ErrCheckpointFormat)
		}
		if _, ok := fields["weights"]; !ok {
			return Checkpoint{}, fmt.Errorf("checkpoint object has no weights: %w", ErrCheckpointFormat)
		}
		var c Checkpoint
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint object: %v: %w", err, ErrCheckpointFormat)
		}
		if c.Version == 0 {
			// Object form written before versioning. Without any statistics
			// it is a bare weight vector in an envelope.
			_, hasMean := fields["obs_mean"]
			_, hasDev := fields["obs_mean_abs_dev"]
			if hasMean || hasDev {
				c.Version = CheckpointVersion
			} else {
				c.Version = 1
			}
		}
		if c.Version > CheckpointVersion {
			return Checkpoint{}, fmt.Errorf("checkpoint version %d: %w", c.Version, ErrCheckpointFormat)
		}
		return c, nil
	}
	return Checkpoint{}, fmt.Errorf("top-level %q: %w", trimmed[0], ErrCheckpointFormat)
}

// SaveFile writes the policy checkpoint to path.
func SaveFile(path string, p *Policy) error {
	data, err := MarshalCheckpoint(p.Checkpoint())
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// ReadFile decodes the checkpoint at path.
func ReadFile(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("reading checkpoint: %w", err)
	}
	return UnmarshalCheckpoint(data)
}

// LoadFile builds a policy from the checkpoint at path. The checkpoint's own
// architecture wins over arch when present.
func LoadFile(path string, arch Architecture, cfg Config) (*Policy, error) {
	c, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if c.Architecture != nil {
		arch = *c.Architecture
	}
	p, err := NewPolicy(arch, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.LoadCheckpoint(c); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}
