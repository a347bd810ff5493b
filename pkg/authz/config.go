package authz

import (
	"path/filepath"
	"strings"

	"github.com/iota-uz/utils/fs"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/configuration"
)

// Config captures all inputs necessary to initialize the Casbin enforcer.
type Config struct {
	// PolicyPath optionally replaces the built-in role policy with a CSV file.
	PolicyPath string
	Logger     *logrus.Logger
}

func (c Config) validate() error {
	if c.PolicyPath != "" && !fs.FileExists(c.PolicyPath) {
		return configError("policy file %q does not exist", c.PolicyPath)
	}
	return nil
}

func (c Config) normalized() Config {
	if p := strings.TrimSpace(c.PolicyPath); p != "" {
		c.PolicyPath = filepath.Clean(p)
	}
	return c
}

// DefaultConfig builds a Config using the global configuration singleton.
func DefaultConfig() Config {
	cfg := configuration.Use()
	return Config{
		PolicyPath: cfg.Authz.PolicyPath,
		Logger:     cfg.Logger(),
	}
}
