package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from environment variables.
type Config struct {
	// LynxAddr is the TCP listen address for the FinishLynx scoreboard feed.
	LynxAddr string `env:"LYNX_ADDR" envDefault:"127.0.0.1:5000"`
	// HTTPAddr serves the status and lap inspection routes.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"localhost:8080"`
	DataDir  string `env:"DATA_DIR" envDefault:"./data/badgerdb"`

	// MobileID and MobilePin authenticate against the results service.
	// An id prefixed with "t." selects the dev endpoint.
	MobileID  string `env:"MOBILE_ID"`
	MobilePin string `env:"MOBILE_PIN"`

	// SchedulePath points at a regatta config snapshot (JSON). Optional;
	// without it results resolve only through their own id fields.
	SchedulePath string `env:"SCHEDULE_PATH"`

	// Waypoint is the scoring waypoint this station records.
	Waypoint string `env:"WAYPOINT" envDefault:"Finish"`
	// StartWaypoint is stamped on synthesized sprint start records when
	// StartWaypointEnable is set.
	StartWaypoint       string `env:"START_WAYPOINT" envDefault:"Start"`
	StartWaypointEnable bool   `env:"START_WAYPOINT_ENABLE"`

	// DebugLevel >0 logs received packet sizes, >2 full payloads.
	DebugLevel int `env:"DEBUG_LEVEL"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
