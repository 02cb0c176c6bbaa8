package brand

import (
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.defaults()

	if cfg.DBPath != "guildbrand.db" || cfg.Addr != ":8420" {
		t.Errorf("paths: %q %q", cfg.DBPath, cfg.Addr)
	}
	if cfg.Catalog.RefreshInterval != 12*time.Hour {
		t.Errorf("refresh interval: %v", cfg.Catalog.RefreshInterval)
	}
	if cfg.Icon.Frames != 5 || cfg.Icon.Delay != time.Second || cfg.Icon.LoopCount != 0 {
		t.Errorf("icon: %+v", cfg.Icon)
	}
	if cfg.Scheduler.CheckInterval != time.Minute {
		t.Errorf("check interval: %v", cfg.Scheduler.CheckInterval)
	}
	if cfg.Discord.CommandPrefix != "$random" {
		t.Errorf("prefix: %q", cfg.Discord.CommandPrefix)
	}
}

func TestCatalogConfig_GraphQL(t *testing.T) {
	c := CatalogConfig{Endpoint: "https://cms.example/graphql", Program: "labs", PastWindow: time.Hour}
	g := c.graphQL()
	if g.Endpoint != c.Endpoint || g.Program != "labs" || g.PastWindow != time.Hour {
		t.Errorf("mapped: %+v", g)
	}
}
