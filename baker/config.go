// Package baker implements the baking service: the event-loop driver that
// owns the consensus machine, the slots registry, the single-shot timer and
// the proof-of-work stamping of proposed blocks.
package baker

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/naoina/toml"
)

// Defaults contains the default settings of the baking service.
var Defaults = Config{
	Endpoint: "http://localhost:8732",
	Protocol: "Psithaca2MLRFYargivpo7YvUr7wUDqyxrdhC5CQq78mRvimz6A",
}

func init() {
	home := os.Getenv("HOME")
	if home == "" {
		if u, err := user.Current(); err == nil {
			home = u.HomeDir
		}
	}
	Defaults.BaseDir = filepath.Join(home, ".tenderbake")
}

// configFile is the optional per-base-dir settings file layered between
// Defaults and the command line.
const configFile = "baker.toml"

// Config contains the configuration options of the baking service.
type Config struct {
	// Endpoint is the node's RPC URL.
	Endpoint string

	// BaseDir locates the signing key (client-directory layout).
	BaseDir string `toml:"-"`

	// Protocol is the protocol hash stamped into proposed block headers.
	Protocol string `toml:",omitempty"`

	// LiquidityBakingEscapeVote is the per-block escape vote signal.
	LiquidityBakingEscapeVote bool `toml:",omitempty"`
}

// LoadConfig returns Defaults overlaid with the base directory's baker.toml
// when one exists.
func LoadConfig(baseDir string) (Config, error) {
	cfg := Defaults
	cfg.BaseDir = baseDir
	data, err := os.ReadFile(filepath.Join(baseDir, configFile))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}
