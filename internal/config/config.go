// Package config loads the demo binary's process-level configuration: a
// YAML file overlaid with BTP_* environment variables, grounded on
// pkg/client/userd/service.go's client.LoadConfig/client.WithConfig layered
// pattern. This never reaches the session core (spec.md §6 explicitly rules
// out config at the session level); it only configures cmd/btp-session-demo.
package config

import (
	"context"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the demo binary's process-level configuration.
type Config struct {
	// ListenAddr is the websocket dev-transport listen address for the
	// `listen` subcommand.
	ListenAddr string `yaml:"listenAddr" env:"LISTEN_ADDR,overwrite"`
	// DialAddr is the peer address the `dial` subcommand connects to.
	DialAddr string `yaml:"dialAddr" env:"DIAL_ADDR,overwrite"`
	// AdvertisedMaxDataSize is the advisory link MTU the demo's handshake
	// responder advertises; the handshake uses it directly as the candidate
	// ATT_MTU, with no 3-byte GATT PDU header added. 0 means not set.
	AdvertisedMaxDataSize uint16 `yaml:"advertisedMaxDataSize" env:"MAX_DATA_SIZE,overwrite"`
	// LogLevel is one of logrus's level names.
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL,overwrite,default=info"`
}

// Default returns the built-in defaults before any file or environment
// overlay is applied.
func Default() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8765",
		DialAddr:              "127.0.0.1:8765",
		AdvertisedMaxDataSize: 0,
		LogLevel:              "info",
	}
}

// Load reads path (if non-empty and present) as YAML over the defaults,
// then overlays BTP_* environment variables, mirroring the teacher's
// file-then-environment layering.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("BTP_", envconfig.OsLookuper()),
	}); err != nil {
		return cfg, err
	}
	return cfg, nil
}
