package svn

import (
	"fmt"
	"os"

	yml "gopkg.in/yaml.v3"
)

// Config captures the yaml description of an exported repository.
type Config struct {
	// Path is the repository directory.
	Path string `yaml:"path"`
	// Branch is the exported branch name, e.g. "master".
	Branch string `yaml:"branch,omitempty"`
	// RenameDetection toggles similarity-based copy-from answers.
	RenameDetection bool `yaml:"rename-detection,omitempty"`
	// PushMode selects "simple" (in-process ref CAS) or "native"
	// (external command honoring server-side hooks).
	PushMode string `yaml:"push-mode,omitempty"`
	// PushCommand is the native-mode command line; the repository
	// directory, commit hash and branch ref are appended as arguments.
	PushCommand string `yaml:"push-command,omitempty"`
	// Linked lists repositories consulted for submodule contents,
	// in resolution order.
	Linked []string `yaml:"linked,omitempty"`
	// LocksFile persists the path-lock table across restarts.
	// Empty disables persistence.
	LocksFile string `yaml:"locks-file,omitempty"`
	// SignKey is an optional SSH private key used to sign commits.
	SignKey string `yaml:"sign-key,omitempty"`
}

// LoadConfig reads and validates a yaml config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := &Config{}
	if err := yml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("load config %s: path is required", path)
	}
	if cfg.PushMode != "simple" && cfg.PushMode != "native" {
		return nil, fmt.Errorf("load config %s: unknown push-mode %q", path, cfg.PushMode)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = "master"
	}
	if c.PushMode == "" {
		c.PushMode = "simple"
	}
}
