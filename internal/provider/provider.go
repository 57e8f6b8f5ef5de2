// Package provider defines the ad platforms that accounts can be connected
// to and how each one hands its OAuth outcome back to the flow.
package provider

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var manifest []byte

// Name identifies an ad platform.
type Name string

const (
	Meta   Name = "meta"
	Google Name = "google"
)

// ErrUnknownProvider indicates a provider name outside the manifest.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// Delivery says how the authorization outcome carries the token.
type Delivery string

const (
	// DeliveryCode means the callback relays an authorization code and the
	// backend performs the code-to-token exchange in a second round trip.
	DeliveryCode Delivery = "code"
	// DeliveryDirect means the backend already exchanged the code during the
	// redirect and the callback carries the tokens themselves.
	DeliveryDirect Delivery = "direct"
)

// Endpoints holds the backend paths for one provider.
type Endpoints struct {
	Initiate  string `yaml:"initiate"`
	Exchange  string `yaml:"exchange"`
	TestToken string `yaml:"test_token"`
	Accounts  string `yaml:"accounts"`
	Campaigns string `yaml:"campaigns"`
}

// Definition is the full wiring for one provider.
type Definition struct {
	Name        Name      `yaml:"name"`
	DisplayName string    `yaml:"display_name"`
	Delivery    Delivery  `yaml:"delivery"`
	SuccessType string    `yaml:"success_type"`
	ErrorType   string    `yaml:"error_type"`
	Endpoints   Endpoints `yaml:"endpoints"`
}

// Registry resolves provider names to their definitions.
type Registry struct {
	byName map[Name]*Definition
	order  []Name
}

// NewRegistry loads the embedded provider manifest.
func NewRegistry() (*Registry, error) {
	var doc struct {
		Providers []*Definition `yaml:"providers"`
	}
	if err := yaml.Unmarshal(manifest, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse provider manifest: %w", err)
	}

	r := &Registry{byName: make(map[Name]*Definition, len(doc.Providers))}
	for _, def := range doc.Providers {
		if def.Name == "" {
			return nil, fmt.Errorf("provider manifest entry is missing a name")
		}
		if def.Delivery != DeliveryCode && def.Delivery != DeliveryDirect {
			return nil, fmt.Errorf("provider %s has unsupported delivery mode %q", def.Name, def.Delivery)
		}
		if _, dup := r.byName[def.Name]; dup {
			return nil, fmt.Errorf("provider %s is defined twice", def.Name)
		}
		r.byName[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Get returns the definition for a provider name.
func (r *Registry) Get(name Name) (*Definition, error) {
	def, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return def, nil
}

// Names returns the known provider names in manifest order.
func (r *Registry) Names() []Name {
	names := make([]Name, len(r.order))
	copy(names, r.order)
	return names
}
