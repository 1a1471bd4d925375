// Package plancfg reads batch plans from YAML files (CLI) and JSON bodies
// (control API) and turns them into domain.BatchPlan values.
package plancfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"aistudio/internal/domain"
)

const (
	// DefaultPlanVersion is the schema version written by this package.
	DefaultPlanVersion = "1"
	// DefaultTotalImages is used when a plan omits total_images.
	DefaultTotalImages = 1
	// MaxTotalImages caps a single batch.
	MaxTotalImages = 100
)

// PlanFile is the on-disk and on-the-wire form of a batch plan.
type PlanFile struct {
	Version     string                   `json:"version" yaml:"version"`
	Request     domain.GenerationRequest `json:"request" yaml:"request"`
	// TotalImages is absent for the default of one image. An explicit 0 is
	// rejected.
	TotalImages *int `json:"total_images,omitempty" yaml:"total_images,omitempty"`
	// MaxAttempts is the per-image budget. Absent means the configured
	// default; 0 means retry until success or a non-retryable error.
	MaxAttempts *int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Normalize fills defaults. defaultAttempts is used when MaxAttempts is absent.
func (p *PlanFile) Normalize(defaultAttempts int) {
	if p == nil {
		return
	}
	if p.Version == "" {
		p.Version = DefaultPlanVersion
	}
	if p.TotalImages == nil {
		n := DefaultTotalImages
		p.TotalImages = &n
	}
	if p.MaxAttempts == nil {
		n := defaultAttempts
		p.MaxAttempts = &n
	}
	p.Request = p.Request.Normalize()
}

// Validate checks the plan before it reaches the sequencer.
func (p PlanFile) Validate() error {
	if p.Version != DefaultPlanVersion {
		return fmt.Errorf("version must be %q, got %q", DefaultPlanVersion, p.Version)
	}
	if strings.TrimSpace(p.Request.Prompt) == "" {
		return errors.New("request.prompt is required")
	}
	if p.TotalImages == nil {
		return errors.New("total_images is required")
	}
	if n := *p.TotalImages; n < 1 || n > MaxTotalImages {
		return fmt.Errorf("total_images must be between 1 and %d", MaxTotalImages)
	}
	if p.MaxAttempts != nil && *p.MaxAttempts < 0 {
		return errors.New("max_attempts must be >= 0")
	}
	return nil
}

// BatchPlan validates p and converts it. Call Normalize first.
func (p PlanFile) BatchPlan() (domain.BatchPlan, error) {
	if err := p.Validate(); err != nil {
		return domain.BatchPlan{}, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	attempts := 0
	if p.MaxAttempts != nil {
		attempts = *p.MaxAttempts
	}
	budget, err := domain.ParseAttemptBudget(attempts)
	if err != nil {
		return domain.BatchPlan{}, err
	}
	plan := domain.BatchPlan{Base: p.Request, TotalImages: *p.TotalImages, MaxAttempts: budget}
	return plan, plan.Validate()
}

// DecodeYAML parses a plan and rejects unknown keys.
func DecodeYAML(r io.Reader) (*PlanFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p PlanFile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", domain.ErrInvalidPlan, err)
	}
	return &p, nil
}

// DecodeJSON parses a plan and rejects unknown keys.
func DecodeJSON(r io.Reader) (*PlanFile, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p PlanFile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", domain.ErrInvalidPlan, err)
	}
	return &p, nil
}

// LoadFile reads a plan from disk. Files ending in .json are read as JSON,
// everything else as YAML.
func LoadFile(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DecodeJSON(f)
	}
	return DecodeYAML(f)
}
