package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the suite at a running server. Without DM_ADDR the suite is skipped.
type Config struct {
	Addr      string `envconfig:"DM_ADDR"`
	JwtSecret string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON dumps full request/response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
