package brand

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/guildbrand/animate"
	"github.com/hazyhaar/guildbrand/catalog"
	"github.com/hazyhaar/guildbrand/composite"
	"github.com/hazyhaar/guildbrand/fetch"
)

// Config holds all guildbrand configuration.
type Config struct {
	DBPath string `yaml:"db_path"`
	// DBBusyTimeout and DBSynchronous override the SQLite pragmas
	// (defaults 10s and NORMAL).
	DBBusyTimeout time.Duration    `yaml:"db_busy_timeout"`
	DBSynchronous string           `yaml:"db_synchronous"`
	Addr          string           `yaml:"addr"`
	LogLevel      string           `yaml:"log_level"`
	Catalog       CatalogConfig    `yaml:"catalog"`
	Fetch         fetch.Config     `yaml:"fetch"`
	Composite     composite.Config `yaml:"composite"`
	Animate       animate.Config   `yaml:"animate"`
	Icon          IconConfig       `yaml:"icon"`
	Scheduler     SchedulerConfig  `yaml:"scheduler"`
	Discord       DiscordConfig    `yaml:"discord"`
	Admin         AdminConfig      `yaml:"admin"`
}

// CatalogConfig controls the CMS query and the refresh period.
type CatalogConfig struct {
	Endpoint        string           `yaml:"endpoint"`
	RefreshInterval time.Duration    `yaml:"refresh_interval"`
	PastWindow      time.Duration    `yaml:"past_window"`
	FutureWindow    time.Duration    `yaml:"future_window"`
	PhotoLimit      int              `yaml:"photo_limit"`
	Program         string           `yaml:"program"`
	IconGeometry    catalog.Geometry `yaml:"icon_geometry"`
	BannerGeometry  catalog.Geometry `yaml:"banner_geometry"`
}

// IconConfig controls the animated icon.
type IconConfig struct {
	// Frames is the number of sampled photos per icon. Default: 5.
	Frames int `yaml:"frames"`
	// Delay between frames. Default: 1s.
	Delay time.Duration `yaml:"delay"`
	// LoopCount of the GIF; 0 loops forever, -1 plays once.
	LoopCount int `yaml:"loop_count"`
	// Concurrency bounds parallel compositing. Default: 4.
	Concurrency int `yaml:"concurrency"`
}

// SchedulerConfig controls the daily scheduler.
type SchedulerConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	Disabled      bool          `yaml:"disabled"`
}

// DiscordConfig configures the Discord transport.
type DiscordConfig struct {
	Token         string `yaml:"token"`
	CommandPrefix string `yaml:"command_prefix"`
}

// AdminConfig protects the HTTP API. Users maps a name to a bcrypt hash;
// an empty map leaves the API open.
type AdminConfig struct {
	Users map[string]string `yaml:"users"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "guildbrand.db"
	}
	if c.Addr == "" {
		c.Addr = ":8420"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Catalog.RefreshInterval <= 0 {
		c.Catalog.RefreshInterval = 12 * time.Hour
	}
	if c.Icon.Frames <= 0 {
		c.Icon.Frames = 5
	}
	if c.Icon.Delay <= 0 {
		c.Icon.Delay = time.Second
	}
	if c.Icon.Concurrency <= 0 {
		c.Icon.Concurrency = 4
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "$random"
	}
}

// graphQL maps the catalog section onto the GraphQL source config.
func (c CatalogConfig) graphQL() catalog.GraphQLConfig {
	return catalog.GraphQLConfig{
		Endpoint:       c.Endpoint,
		PastWindow:     c.PastWindow,
		FutureWindow:   c.FutureWindow,
		PhotoLimit:     c.PhotoLimit,
		Program:        c.Program,
		IconGeometry:   c.IconGeometry,
		BannerGeometry: c.BannerGeometry,
	}
}

// LoadConfigFile reads a YAML config file. Missing values keep their zero
// value until New applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from the environment: DISCORD_TOKEN and
// ADMIN_PASSWORD_HASH (for user "admin").
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("ADMIN_PASSWORD_HASH"); v != "" {
		if c.Admin.Users == nil {
			c.Admin.Users = map[string]string{}
		}
		c.Admin.Users["admin"] = v
	}
}
