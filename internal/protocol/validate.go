package protocol

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas holds the compiled message schemas used to validate inbound frames.
// A nil *Schemas skips validation.
type Schemas struct {
	Command   *jsonschema.Schema
	Subscribe *jsonschema.Schema
}

func LoadSchemas(dir string) (*Schemas, error) {
	compile := func(name string) (*jsonschema.Schema, error) {
		s, err := jsonschema.Compile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		return s, nil
	}
	cmd, err := compile("command.schema.json")
	if err != nil {
		return nil, err
	}
	sub, err := compile("observer_subscribe.schema.json")
	if err != nil {
		return nil, err
	}
	return &Schemas{Command: cmd, Subscribe: sub}, nil
}

func (s *Schemas) ValidateCommand(raw []byte) error {
	if s == nil {
		return nil
	}
	return validateRaw(s.Command, raw)
}

func (s *Schemas) ValidateSubscribe(raw []byte) error {
	if s == nil {
		return nil
	}
	return validateRaw(s.Subscribe, raw)
}

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	if s == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
