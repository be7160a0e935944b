// Package profile defines compliance profiles: named bundles selecting
// which redaction stages run and which NER entity categories are masked.
package profile

import (
	"fmt"

	"go.uber.org/zap"
)

// Profile is an immutable compliance configuration, fixed at startup.
type Profile struct {
	Name   string
	Stage1 bool // deterministic pattern redaction
	Stage2 bool // contextual NER redaction (also gated on the runtime flag)

	// EntityTypes restricts which stage-2 categories are replaced.
	// nil means every category the NER wrapper knows.
	EntityTypes []string
}

// Built-in profile names.
const (
	GDPR   = "GDPR"
	DORA   = "DORA"
	PCIDSS = "PCI_DSS"
	Full   = "full"
)

// Registry resolves profile names to configurations. Built-in profiles are
// registered at construction; operator-defined profiles may be added
// before the registry is handed to the pipeline.
type Registry struct {
	profiles map[string]Profile
	logger   *zap.Logger
}

// NewRegistry builds a registry holding the built-in profiles.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
		logger:   logger,
	}
	for _, p := range builtins() {
		r.profiles[p.Name] = p
	}
	return r
}

func builtins() []Profile {
	return []Profile{
		{
			Name:        GDPR,
			Stage1:      true,
			Stage2:      true,
			EntityTypes: []string{"NAME", "ADDRESS", "DATE_TIME", "PASSPORT_NUMBER", "DRIVER_ID"},
		},
		{Name: DORA, Stage1: true, Stage2: false},
		{Name: PCIDSS, Stage1: true, Stage2: false},
		{Name: Full, Stage1: true, Stage2: true},
	}
}

// Get resolves a profile by name. Unknown names warn on the diagnostics
// sink and fall back to GDPR; Get is total by design so a typo in an
// operator's environment degrades rather than breaks the proxy.
func (r *Registry) Get(name string) Profile {
	if p, ok := r.profiles[name]; ok {
		return p
	}
	r.logger.Warn("Unknown compliance profile, falling back to GDPR",
		zap.String("profile", name),
	)
	return r.profiles[GDPR]
}

// Register adds an operator-defined profile. Built-in names cannot be
// shadowed.
func (r *Registry) Register(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	for _, b := range builtins() {
		if p.Name == b.Name {
			return fmt.Errorf("profile %q is built in and cannot be overridden", p.Name)
		}
	}
	r.profiles[p.Name] = p
	return nil
}
