package tenant

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the layout of a tenants YAML file.
type File struct {
	Tenants []*Tenant `yaml:"tenants"`
}

// LoadFile reads tenants from a YAML file. Values are expanded against the
// process environment, so secrets can be written as ${STRIPE_WEBHOOK_SECRET}.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes a tenants YAML document.
func Parse(data []byte) (*Directory, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenants YAML: %w", err)
	}

	for _, t := range file.Tenants {
		for k, v := range t.Values {
			t.Values[k] = os.ExpandEnv(v)
		}
	}

	return NewDirectory(file.Tenants...)
}

// LoadFileOrDefault loads tenants from path, falling back to a single
// "default" tenant when path is empty.
func LoadFileOrDefault(path string) (*Directory, error) {
	if path == "" {
		return NewDirectory(&Tenant{ID: "default", Values: map[string]string{}})
	}

	return LoadFile(path)
}
