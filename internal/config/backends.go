package config

// BackendEntry configures one search backend in the config file. The
// built-in backends can be tuned (different SearxNG instance, region)
// or disabled, and additional SearxNG instances can be added under new
// names.
type BackendEntry struct {
	// Kind selects the adapter implementation: "duckduckgo", "searx",
	// or "ahmia". Additional entries of kind "searx" may appear under
	// distinct names for extra instances.
	Kind string `yaml:"kind"`

	// URL overrides the backend's base URL. For searx entries this is
	// required since there is no canonical public instance.
	URL string `yaml:"url,omitempty"`

	// Language is the region or language hint passed to the backend.
	Language string `yaml:"language,omitempty"`

	// Disabled removes the backend from the default selection.
	Disabled bool `yaml:"disabled,omitempty"`
}

// File represents the structure of the .torsearch configuration file.
type File struct {
	// Backends maps backend names to their configuration. Names of
	// built-in backends override the defaults; other names add new
	// backends.
	Backends map[string]BackendEntry `yaml:"backends,omitempty"`

	// Order lists backend names in priority order. Backends not listed
	// rank after all listed ones. Priority decides tie-breaks during
	// result aggregation.
	Order []string `yaml:"order,omitempty"`
}

// Has reports whether a backend with the given name is configured and
// enabled.
func (cf *File) Has(name string) bool {
	entry, ok := cf.Backends[name]
	return ok && !entry.Disabled
}

// Get returns the configuration for a named backend.
func (cf *File) Get(name string) (BackendEntry, bool) {
	entry, ok := cf.Backends[name]
	return entry, ok
}
