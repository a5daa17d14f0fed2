package internal

import (
	"log"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/haatos/forgeci/internal/util"
)

// config is replaced wholesale on updates so event workers can read it
// without locking while the PUT /config handler swaps it.
var config atomic.Pointer[Configuration]

func Config() *Configuration {
	return config.Load()
}

func SetConfiguration(c *Configuration) {
	config.Store(c)
}

type Configuration struct {
	SetupSessionTTLMinutes int64    `yaml:"setup_session_ttl_minutes"`
	EventWorkers           int      `yaml:"event_workers"`
	EventQueueSize         int64    `yaml:"event_queue_size"`
	SyncIntervalHours      int64    `yaml:"sync_interval_hours"`
	PullRequestBuilds      bool     `yaml:"pull_request_builds"`
	PullRequestActions     []string `yaml:"pull_request_actions"`
}

func DefaultConfiguration() *Configuration {
	return &Configuration{
		SetupSessionTTLMinutes: 10,
		EventWorkers:           4,
		EventQueueSize:         256,
		SyncIntervalHours:      6,
		PullRequestBuilds:      true,
		PullRequestActions:     []string{"opened", "synchronize"},
	}
}

func (c *Configuration) SetupSessionTTL() time.Duration {
	return time.Duration(c.SetupSessionTTLMinutes) * time.Minute
}

// SyncInterval returns the periodic reconciliation interval. ok is false
// when sync_interval_hours is zero or negative, which disables the
// scheduled sync.
func (c *Configuration) SyncInterval() (time.Duration, bool) {
	if c.SyncIntervalHours <= 0 {
		return 0, false
	}
	return time.Duration(c.SyncIntervalHours) * time.Hour, true
}

func (c *Configuration) BuildsPullRequestAction(action string) bool {
	if !c.PullRequestBuilds {
		return false
	}
	return slices.Contains(c.PullRequestActions, action)
}

func InitializeConfiguration() {
	cfg := DefaultConfiguration()

	configFileExists, _ := util.PathExists("config.yml")
	if !configFileExists {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatal(err)
		}
		configFile, err := os.Create("config.yml")
		if err != nil {
			log.Fatal(err)
		}
		if _, err := configFile.Write(b); err != nil {
			log.Fatal(err)
		}
	} else {
		configBytes, err := os.ReadFile("config.yml")
		if err != nil {
			log.Fatal(err)
		}
		if err := yaml.Unmarshal(configBytes, cfg); err != nil {
			log.Fatal(err)
		}
	}
	SetConfiguration(cfg)
}

func UpdateConfiguration(cfg *Configuration) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	configFile, err := os.Create("config.yml")
	if err != nil {
		return err
	}

	if _, err := configFile.Write(b); err != nil {
		return err
	}

	SetConfiguration(cfg)

	return nil
}
