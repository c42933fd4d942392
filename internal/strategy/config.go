// Package strategy holds the built-in trading strategies and the config
// plumbing they share. Strategies receive their config as a raw YAML
// document and parse it here.
package strategy

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// LoadConfig parses a YAML document into T and validates it.
func LoadConfig[T any](document string) (T, error) {
	var cfg T

	if err := yaml.Unmarshal([]byte(document), &cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeConfig, "failed to parse strategy config", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return cfg, errors.Wrap(errors.ErrCodeConfig, "invalid strategy config", err)
	}

	return cfg, nil
}

// ConfigSchema returns the JSON schema describing T, for editors and
// config validation tooling.
func ConfigSchema[T any]() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true

	var zero T

	schema := r.Reflect(&zero)

	out, err := json.Marshal(schema)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfig, "failed to marshal config schema", err)
	}

	return string(out), nil
}
