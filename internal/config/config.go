package config

import (
	"errors"
	"fmt"
	"time"

	"binas/internal/directory"
)

const (
	DefaultStationTemplate = "A46_Station"
	DefaultStations        = 3
	DefaultInitialCredits  = 10
	DefaultReplicaTimeout  = 2 * time.Second
	DefaultProbeTimeout    = 2 * time.Second
	DefaultTablePrefix     = "binas"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the binas server configuration.
type Config struct {
	ListenAddr      string
	StationTemplate string
	Stations        int
	InitialCredits  int
	ReplicaTimeout  time.Duration
	ProbeTimeout    time.Duration
	ReadRepair      bool
	GlobalLock      bool

	// Endpoints is the static station directory. It is ignored when
	// DatabaseURL is set.
	Endpoints   []directory.Record
	DatabaseURL string
	TablePrefix string
}

// Default returns a config with every default applied.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		StationTemplate: DefaultStationTemplate,
		Stations:        DefaultStations,
		InitialCredits:  DefaultInitialCredits,
		ReplicaTimeout:  DefaultReplicaTimeout,
		ProbeTimeout:    DefaultProbeTimeout,
		TablePrefix:     DefaultTablePrefix,
	}
}

// ParseEndpoints parses a comma-separated list of stations in the format:
// "name1=addr1,name2=addr2,name3=addr3"
func ParseEndpoints(s string) ([]directory.Record, error) {
	records, err := directory.ParseRecords(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return records, nil
}

// Validate checks that the config can start a server.
func (c *Config) Validate() error {
	switch {
	case c.StationTemplate == "":
		return fmt.Errorf("%w: station template cannot be empty", ErrInvalidConfig)
	case c.Stations < 1:
		return fmt.Errorf("%w: stations must be at least 1, got %d", ErrInvalidConfig, c.Stations)
	case c.InitialCredits < 0:
		return fmt.Errorf("%w: initial credits cannot be negative, got %d", ErrInvalidConfig, c.InitialCredits)
	case c.ReplicaTimeout <= 0:
		return fmt.Errorf("%w: replica timeout must be positive, got %s", ErrInvalidConfig, c.ReplicaTimeout)
	case c.ProbeTimeout <= 0:
		return fmt.Errorf("%w: probe timeout must be positive, got %s", ErrInvalidConfig, c.ProbeTimeout)
	case c.DatabaseURL != "" && c.TablePrefix == "":
		return fmt.Errorf("%w: table prefix cannot be empty with a database", ErrInvalidConfig)
	case c.DatabaseURL == "" && len(c.Endpoints) == 0:
		return fmt.Errorf("%w: either endpoints or a database is required", ErrInvalidConfig)
	}
	return nil
}
