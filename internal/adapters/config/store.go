// Package config loads the persisted build configuration and enforces the
// schema version policy.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"

	"github.com/melih/ocomp/internal/core/domain"
	"github.com/melih/ocomp/internal/logfields"
)

const (
	DirName  = "ocomp"
	FileName = "config.toml"

	versionKey = "version"
)

// SchemaVersion is the configuration schema this binary understands. Only
// major and minor are compared against the persisted version.
var SchemaVersion = semver.MustParse("1.0.0")

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrVersionMismatch   = errors.New("config version mismatch")
	ErrMigrationDeclined = errors.New("config migration declined")
	targetNamePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	reservedTargetNames  = map[string]struct{}{"metrics": {}}
)

// Store reads and writes config.toml inside a config directory.
type Store struct {
	dir      string
	policy   MigrationPolicy
	prompter Prompter
	expected *semver.Version
}

// Option customises a Store.
type Option func(*Store)

// WithMigrationPolicy selects what Load does on a schema version mismatch.
func WithMigrationPolicy(p MigrationPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithPrompter sets the confirmation source used by PolicyPrompt.
func WithPrompter(p Prompter) Option {
	return func(s *Store) { s.prompter = p }
}

// WithSchemaVersion overrides the expected schema version.
func WithSchemaVersion(v *semver.Version) Option {
	return func(s *Store) { s.expected = v }
}

// NewStore creates a store rooted at dir. An empty dir means DefaultDir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	s := &Store{dir: dir, policy: PolicyFail, expected: SchemaVersion}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultDir returns %APPDATA%/ocomp on Windows and ~/.config/ocomp elsewhere.
func DefaultDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA is not set")
		}
		return filepath.Join(appData, DirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", DirName), nil
}

// Dir returns the config directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the config file path.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

// Load reads the configuration, writing the default file first when none
// exists. A version mismatch is resolved according to the migration policy.
func (s *Store) Load() (*domain.Configuration, error) {
	path, err := s.ensureExists()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, version, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if version.Major() != s.expected.Major() || version.Minor() != s.expected.Minor() {
		if err := s.reconcile(path, version); err != nil {
			return nil, err
		}
		return s.Load()
	}

	slog.Info("Loaded configuration",
		logfields.Path(path),
		logfields.Version(cfg.Version),
		slog.Int("targets", len(cfg.Targets)))
	return cfg, nil
}

// reconcile returns nil once the outdated file has been removed and Load may
// regenerate defaults.
func (s *Store) reconcile(path string, found *semver.Version) error {
	mismatch := fmt.Errorf("%w: executable expects %d.%d.x, config is %s",
		ErrVersionMismatch, s.expected.Major(), s.expected.Minor(), found)

	switch s.policy {
	case PolicyOverwrite:
	case PolicyPrompt:
		if s.prompter == nil {
			return mismatch
		}
		ok, err := s.prompter.Confirm(fmt.Sprintf(
			"Config version %s does not match the executable's %s. Overwrite it with the default configuration", found, s.expected))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %v", ErrMigrationDeclined, mismatch)
		}
	default:
		return fmt.Errorf("%w (rerun with --migrate=overwrite to replace it with defaults)", mismatch)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read old config: %w", err)
	}
	backup := path + ".bak"
	if err := writeFile(backup, data, 0o644); err != nil {
		return fmt.Errorf("failed to back up old config: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete old config file: %w", err)
	}
	slog.Warn("Replaced outdated configuration with defaults",
		logfields.Version(found.String()),
		logfields.Path(backup))
	return nil
}

func (s *Store) ensureExists() (string, error) {
	path := s.Path()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeFile(path, DefaultConfig(s.expected), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	slog.Info("Wrote default configuration", logfields.Path(path))
	return path, nil
}

// DefaultConfig renders the configuration written on first run.
func DefaultConfig(version *semver.Version) []byte {
	return []byte(fmt.Sprintf(`version = "%s"

[rust]
    build = "cargo build --release"
    output = "target/release/*.exe"
`, version))
}

type targetTable struct {
	Build   string `toml:"build"`
	Output  string `toml:"output"`
	Timeout string `toml:"timeout"`
}

// Parse decodes and validates config.toml content. The top-level version key
// is required; every other top-level key is a target table.
func Parse(data []byte) (*domain.Configuration, *semver.Version, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	rawVersion, ok := raw[versionKey].(string)
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing string field %q", ErrInvalidConfig, versionKey)
	}
	version, err := semver.StrictNewVersion(rawVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid config version %q: %w", ErrInvalidConfig, rawVersion, err)
	}

	cfg := &domain.Configuration{Version: rawVersion, Targets: make(map[string]domain.BuildTarget)}

	names := make([]string, 0, len(raw))
	for name := range raw {
		if name != versionKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		target, err := parseTarget(name, raw[name])
		if err != nil {
			return nil, nil, err
		}
		cfg.Targets[name] = target
	}
	return cfg, version, nil
}

func parseTarget(name string, value any) (domain.BuildTarget, error) {
	if !targetNamePattern.MatchString(name) {
		return domain.BuildTarget{}, fmt.Errorf("%w: target name %q is not a valid route segment", ErrInvalidConfig, name)
	}
	if _, reserved := reservedTargetNames[name]; reserved {
		return domain.BuildTarget{}, fmt.Errorf("%w: target name %q is reserved", ErrInvalidConfig, name)
	}
	if _, isTable := value.(map[string]any); !isTable {
		return domain.BuildTarget{}, fmt.Errorf("%w: %q must be a table with build and output keys", ErrInvalidConfig, name)
	}

	// Round-trip the table so go-toml does the field type checking.
	encoded, err := toml.Marshal(value)
	if err != nil {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q: %w", ErrInvalidConfig, name, err)
	}
	var tt targetTable
	dec := toml.NewDecoder(bytes.NewReader(encoded))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tt); err != nil {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q: %w", ErrInvalidConfig, name, err)
	}

	if tt.Build == "" {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q has an empty build command", ErrInvalidConfig, name)
	}
	if tt.Output == "" {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q has an empty output pattern", ErrInvalidConfig, name)
	}
	if _, err := filepath.Match(tt.Output, ""); err != nil {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q output pattern: %w", ErrInvalidConfig, name, err)
	}
	if filepath.IsAbs(tt.Output) {
		return domain.BuildTarget{}, fmt.Errorf("%w: target %q output pattern must be relative to the workspace", ErrInvalidConfig, name)
	}

	target := domain.BuildTarget{Name: name, BuildCommand: tt.Build, OutputPattern: tt.Output}
	if tt.Timeout != "" {
		d, err := time.ParseDuration(tt.Timeout)
		if err != nil || d <= 0 {
			return domain.BuildTarget{}, fmt.Errorf("%w: target %q has invalid timeout %q", ErrInvalidConfig, name, tt.Timeout)
		}
		target.Timeout = d
	}
	return target, nil
}
