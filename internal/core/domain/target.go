package domain

import "time"

// BuildTarget is a named build configuration exposed as one HTTP route.
type BuildTarget struct {
	Name          string        `json:"name"`
	BuildCommand  string        `json:"build"`
	OutputPattern string        `json:"output"`
	Timeout       time.Duration `json:"timeout,omitempty"` // zero means the service default
}

// Configuration is the loaded, validated build configuration. It is never
// mutated after load and is shared read-only across request handlers.
type Configuration struct {
	Version string
	Targets map[string]BuildTarget
}

// TargetNames returns the configured target names. Order is unspecified.
func (c *Configuration) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	return names
}
