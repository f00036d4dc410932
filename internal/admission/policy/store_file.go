package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"

	"gopkg.in/yaml.v3"
)

// FileStore serves policies parsed once from a YAML file:
//
//	defaults:
//	  max_attempts: 20
//	  window_minutes: 60
//	  block_minutes: 15
//	  mode: optimistic
//	classes:
//	  login:
//	    max_attempts: 10
//	    window_minutes: 15
//	    block_minutes: 15
//	    mode: explicit
//
// Per-class entries override the file's defaults field by field.
type FileStore struct {
	policies map[models.EndpointClass]models.Policy
}

type filePolicy struct {
	MaxAttempts   *int    `yaml:"max_attempts"`
	WindowMinutes *int    `yaml:"window_minutes"`
	BlockMinutes  *int    `yaml:"block_minutes"`
	Mode          *string `yaml:"mode"`
}

type fileConfig struct {
	Defaults filePolicy            `yaml:"defaults"`
	Classes  map[string]filePolicy `yaml:"classes"`
}

// NewFile parses the policy file at path. Parse and mode errors fail
// construction; a file that loads is served verbatim, with range
// validation left to the cache.
func NewFile(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	base, err := applyFilePolicy(models.DefaultPolicy(), cfg.Defaults)
	if err != nil {
		return nil, fmt.Errorf("policy file defaults: %w", err)
	}

	policies := make(map[models.EndpointClass]models.Policy, len(cfg.Classes))
	for name, fp := range cfg.Classes {
		p, err := applyFilePolicy(base, fp)
		if err != nil {
			return nil, fmt.Errorf("policy file class %q: %w", name, err)
		}
		policies[models.EndpointClass(name)] = p
	}

	return &FileStore{policies: policies}, nil
}

func (s *FileStore) LoadPolicy(_ context.Context, class models.EndpointClass) (models.Policy, error) {
	p, ok := s.policies[class]
	if !ok {
		return models.Policy{}, dErrors.New(dErrors.CodeNotFound, "no policy configured for class "+class.String())
	}
	return p, nil
}

func applyFilePolicy(base models.Policy, fp filePolicy) (models.Policy, error) {
	if fp.MaxAttempts != nil {
		base.MaxAttempts = *fp.MaxAttempts
	}
	if fp.WindowMinutes != nil {
		base.Window = time.Duration(*fp.WindowMinutes) * time.Minute
	}
	if fp.BlockMinutes != nil {
		base.BlockDuration = time.Duration(*fp.BlockMinutes) * time.Minute
	}
	if fp.Mode != nil {
		mode, err := models.ParseConsumptionMode(*fp.Mode)
		if err != nil {
			return models.Policy{}, err
		}
		base.Mode = mode
	}
	return base, nil
}
