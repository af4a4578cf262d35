// Package tenant holds per-tenant configuration: named values such as API keys
// and the name of the value that signs inbound webhooks.
package tenant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/packflow/pkg/models"
)

// DefaultSignatureHeader carries the hex HMAC-SHA256 of an inbound event body.
const DefaultSignatureHeader = "X-Signature"

// ErrTenantNotFound is returned when a tenant identifier is unknown.
var ErrTenantNotFound = errors.New("tenant not found")

// Tenant is the configuration of one tenant.
type Tenant struct {
	ID                string            `json:"id"                            yaml:"id"                validate:"required"`
	Name              string            `json:"name,omitempty"                yaml:"name"`
	WebhookSecretName string            `json:"webhook_secret_name,omitempty" yaml:"webhookSecretName"`
	SignatureHeader   string            `json:"signature_header,omitempty"    yaml:"signatureHeader"`
	Values            map[string]string `json:"-"                             yaml:"values"`
}

// Value returns a named configuration value.
func (t *Tenant) Value(name string) (string, bool) {
	v, ok := t.Values[name]

	return v, ok && v != ""
}

// SigningSecret resolves the webhook-signing secret through its configured name.
func (t *Tenant) SigningSecret() (string, error) {
	if t.WebhookSecretName == "" {
		return "", models.NewValidationError("tenants."+t.ID, "no webhook secret name configured")
	}

	secret, ok := t.Value(t.WebhookSecretName)
	if !ok {
		return "", models.NewValidationError("tenants."+t.ID, "value %q is not set", t.WebhookSecretName)
	}

	return secret, nil
}

// Header returns the request header that carries the event signature.
func (t *Tenant) Header() string {
	if t.SignatureHeader == "" {
		return DefaultSignatureHeader
	}

	return t.SignatureHeader
}

// Env exposes the tenant's values to templates as the "env" subject key.
func (t *Tenant) Env() map[string]any {
	env := make(map[string]any, len(t.Values))
	for k, v := range t.Values {
		env[k] = v
	}

	return env
}

// Directory is a concurrency-safe set of tenants.
type Directory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewDirectory creates a Directory holding the given tenants.
func NewDirectory(tenants ...*Tenant) (*Directory, error) {
	d := &Directory{tenants: make(map[string]*Tenant, len(tenants))}

	for _, t := range tenants {
		if err := d.Put(t); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Put adds or replaces a tenant.
func (d *Directory) Put(t *Tenant) error {
	if err := validate.Struct(t); err != nil {
		return &models.ValidationError{Path: "tenants", Message: "invalid tenant", Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tenants[t.ID] = t

	return nil
}

// Get returns the tenant with the given identifier.
func (d *Directory) Get(id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}

	return t, nil
}

// IDs lists tenant identifiers in sorted order.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
