// Package pack loads automation packs: bundles of workflow definitions and
// seed records, written as YAML or JSON.
package pack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/seed"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported pack format")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Pack is one declarative bundle.
type Pack struct {
	Name        string             `json:"name"                  yaml:"name"        validate:"required"`
	Version     string             `json:"version,omitempty"     yaml:"version"`
	Description string             `json:"description,omitempty" yaml:"description"`
	Workflows   []*models.Workflow `json:"workflows"             yaml:"workflows"   validate:"dive"`
	Seed        []seed.ModelSeed   `json:"seed,omitempty"        yaml:"seed"        validate:"dive"`

	// Source is the file the pack was read from.
	Source string `json:"-" yaml:"-"`
}

// Format is the encoding of a pack file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Decode reads and validates a pack.
func Decode(r io.Reader, format Format) (*Pack, error) {
	var p Pack

	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(r)
		decoder.KnownFields(true)

		if err := decoder.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return nil, &models.ValidationError{Path: "pack", Message: "invalid YAML", Err: err}
		}
	case FormatJSON:
		decoder := json.NewDecoder(r)
		decoder.DisallowUnknownFields()
		decoder.UseNumber()

		if err := decoder.Decode(&p); err != nil {
			return nil, &models.ValidationError{Path: "pack", Message: "invalid JSON", Err: err}
		}

		normalizeNumbers(&p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.link()

	return &p, nil
}

// Parse decodes a pack held in memory.
func Parse(data []byte, format Format) (*Pack, error) {
	return Decode(bytes.NewReader(data), format)
}

// LoadFile reads one pack file.
func LoadFile(path string) (*Pack, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pack %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	p, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}

	p.Source = path

	return p, nil
}

// Validate checks the struct constraints of the pack and its workflows.
// Graph level checks happen when the workflows are compiled.
func (p *Pack) Validate() error {
	if err := validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]error, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, models.NewValidationError(fieldPath(fe.Namespace()),
					"failed on %q", fe.Tag()))
			}

			return errors.Join(problems...)
		}

		return &models.ValidationError{Path: "pack", Message: "invalid pack", Err: err}
	}

	return nil
}

// link stamps every step and trigger with its workflow's identifier.
func (p *Pack) link() {
	for _, wf := range p.Workflows {
		for _, step := range wf.Steps {
			step.WorkflowID = wf.ID
		}

		for _, trigger := range wf.Triggers {
			trigger.WorkflowID = wf.ID
		}
	}
}

func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		namespace = namespace[i+1:]
	}

	return namespace
}

// Set is a group of packs loaded together.
type Set struct {
	Packs []*Pack
}

// LoadPath loads a single pack file or every pack file of a directory, in
// lexical order. Subdirectories are not visited.
func LoadPath(path string) (*Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	paths := []string{path}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read pack directory %s: %w", path, err)
		}

		paths = paths[:0]

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			if _, err := FormatOf(entry.Name()); err == nil {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}

		sort.Strings(paths)
	}

	set := &Set{}

	for _, p := range paths {
		loaded, err := LoadFile(p)
		if err != nil {
			return nil, err
		}

		set.Packs = append(set.Packs, loaded)
	}

	if err := set.checkUnique(); err != nil {
		return nil, err
	}

	return set, nil
}

func (s *Set) checkUnique() error {
	seen := map[string]string{}

	var problems []error

	for _, p := range s.Packs {
		for _, wf := range p.Workflows {
			if other, ok := seen[wf.ID]; ok {
				problems = append(problems, models.NewValidationError("workflows."+wf.ID,
					"defined in both %s and %s", other, p.Name))

				continue
			}

			seen[wf.ID] = p.Name
		}
	}

	return errors.Join(problems...)
}

// Workflows returns the workflows of every pack.
func (s *Set) Workflows() []*models.Workflow {
	var out []*models.Workflow
	for _, p := range s.Packs {
		out = append(out, p.Workflows...)
	}

	return out
}

// Seeds returns the seed batches of every pack, in pack order.
func (s *Set) Seeds() []seed.ModelSeed {
	var out []seed.ModelSeed
	for _, p := range s.Packs {
		out = append(out, p.Seed...)
	}

	return out
}

// Names returns the pack names.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Packs))
	for _, p := range s.Packs {
		names = append(names, p.Name)
	}

	return names
}
