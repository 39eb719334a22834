package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`
	StrictInvariants   bool  `yaml:"strict_invariants"`
	Seed               int64 `yaml:"seed"`

	CommandQueue  int `yaml:"command_queue"`
	ObserverQueue int `yaml:"observer_queue"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		SnapshotEveryTicks: 3000,
		CommandQueue:       1024,
		ObserverQueue:      64,
	}
}

// Load reads path over Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0 || t.TickRateHz > 240:
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	case t.SnapshotEveryTicks < 0:
		return fmt.Errorf("snapshot_every_ticks negative: %d", t.SnapshotEveryTicks)
	case t.CommandQueue <= 0:
		return fmt.Errorf("command_queue must be positive")
	case t.ObserverQueue <= 0:
		return fmt.Errorf("observer_queue must be positive")
	}
	return nil
}
