// Package catalog holds the process-wide cache of promotional image references
// and the logo asset used to brand guild icons.
//
// A Snapshot is built from one CMS query and is swapped into the Cache as a
// whole: readers see either the previous snapshot or the new one, never icons
// from one refresh with banners from another.
//
//	cache := catalog.NewCache(source, logger)
//	r := catalog.NewRefresher(cache, catalog.RefresherConfig{Interval: 12 * time.Hour}, logger)
//	go r.Run(ctx)
//	refs := cache.Get(catalog.Icon)
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// SizeClass selects which reference pool is consulted and which target
// geometry applies. It is not a pixel size.
type SizeClass int

const (
	Icon SizeClass = iota
	Banner
)

// String returns the lower-case name used in config, logs and the API.
func (s SizeClass) String() string {
	switch s {
	case Icon:
		return "icon"
	case Banner:
		return "banner"
	default:
		return fmt.Sprintf("sizeclass(%d)", int(s))
	}
}

// ParseSizeClass parses "icon" or "banner" (case-insensitive).
func ParseSizeClass(s string) (SizeClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "icon":
		return Icon, nil
	case "banner":
		return Banner, nil
	}
	return 0, fmt.Errorf("catalog: unknown size class %q", s)
}

// Pool origins recorded on a Snapshot.
const (
	OriginDefault = "default"
	OriginEvent   = "event"
)

// Snapshot is the complete state of the cache at one point in time.
// It is never modified after being stored in a Cache.
type Snapshot struct {
	Icons        []string  `json:"icons"`
	Banners      []string  `json:"banners"`
	Logo         []byte    `json:"-"`
	IconOrigin   string    `json:"icon_origin"`
	BannerOrigin string    `json:"banner_origin"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// Refs returns the reference pool for the given size class.
func (s *Snapshot) Refs(size SizeClass) []string {
	if s == nil {
		return nil
	}
	switch size {
	case Icon:
		return s.Icons
	case Banner:
		return s.Banners
	}
	return nil
}

// Stats summarises a snapshot without exposing the logo bytes.
type Stats struct {
	Icons        int       `json:"icons"`
	Banners      int       `json:"banners"`
	LogoBytes    int       `json:"logo_bytes"`
	IconOrigin   string    `json:"icon_origin"`
	BannerOrigin string    `json:"banner_origin"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// Stats returns counts for the snapshot.
func (s *Snapshot) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Icons:        len(s.Icons),
		Banners:      len(s.Banners),
		LogoBytes:    len(s.Logo),
		IconOrigin:   s.IconOrigin,
		BannerOrigin: s.BannerOrigin,
		RefreshedAt:  s.RefreshedAt,
	}
}
