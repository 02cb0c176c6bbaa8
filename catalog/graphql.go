package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Geometry is a target width x height in pixels.
type Geometry struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Fetcher resolves an image reference to bytes. Satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// GraphQLConfig configures the CMS query.
type GraphQLConfig struct {
	// Endpoint is the GraphQL URL. Default: https://graph.codeday.org/.
	Endpoint string
	// PastWindow and FutureWindow bound the event window around now.
	// Defaults: 24h and 72h.
	PastWindow   time.Duration
	FutureWindow time.Duration
	// PhotoLimit caps the press photo collection. Default: 1000.
	PhotoLimit int
	// Program is the webname of the program whose white logo is used. Default: codeday.
	Program string
	// IconGeometry and BannerGeometry are passed to the CMS url transforms.
	IconGeometry   Geometry
	BannerGeometry Geometry
	// MaxBytes caps the query response. Default: 10MB.
	MaxBytes int64
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (c *GraphQLConfig) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://graph.codeday.org/"
	}
	if c.PastWindow <= 0 {
		c.PastWindow = 24 * time.Hour
	}
	if c.FutureWindow <= 0 {
		c.FutureWindow = 72 * time.Hour
	}
	if c.PhotoLimit <= 0 {
		c.PhotoLimit = 1000
	}
	if c.Program == "" {
		c.Program = "codeday"
	}
	if c.IconGeometry.Width <= 0 || c.IconGeometry.Height <= 0 {
		c.IconGeometry = Geometry{Width: 512, Height: 512}
	}
	if c.BannerGeometry.Width <= 0 || c.BannerGeometry.Height <= 0 {
		c.BannerGeometry = Geometry{Width: 1920, Height: 1080}
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// GraphQLSource loads snapshots from the CMS GraphQL endpoint.
type GraphQLSource struct {
	client  *http.Client
	fetcher Fetcher
	config  GraphQLConfig
	query   string
}

// NewGraphQLSource creates a source. The fetcher is used for the logo asset.
func NewGraphQLSource(client *http.Client, fetcher Fetcher, cfg GraphQLConfig) *GraphQLSource {
	cfg.defaults()
	if client == nil {
		client = http.DefaultClient
	}
	return &GraphQLSource{
		client:  client,
		fetcher: fetcher,
		config:  cfg,
		query:   buildQuery(cfg),
	}
}

func transform(g Geometry) string {
	return fmt.Sprintf("transform: { width: %d, height: %d, resizeStrategy: FILL, format: JPG, quality: 100 }", g.Width, g.Height)
}

func buildQuery(cfg GraphQLConfig) string {
	icon := transform(cfg.IconGeometry)
	banner := transform(cfg.BannerGeometry)
	return fmt.Sprintf(`
  query($pastEventCutoff: CmsDateTime, $futureEventCutoff: CmsDateTime) {
    cms {
      pressPhotos(limit: %d) {
        items {
          photo {
            icon: url(%s)
            banner: url(%s)
          }
        }
      }

      nextEvent: events (
        where: { endsAt_gte: $pastEventCutoff, startsAt_lte: $futureEventCutoff },
        order: startsAt_ASC, limit: 1
      ) {
        items {
          banners: themeBackgrounds {
            items {
              url(%s)
            }
          }
          icons: themeLogoBackgrounds {
            items {
              url(%s)
            }
          }
        }
      }

      logo: programs(where: {webname:%q}, limit: 1) {
        items {
          logoWhite {
            url
          }
        }
      }
    }
  }
`, cfg.PhotoLimit, icon, banner, banner, icon, cfg.Program)
}

type graphQLRequest struct {
	OperationName *string        `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type urlItem struct {
	URL string `json:"url"`
}

type urlList struct {
	Items []urlItem `json:"items"`
}

// CMSResponse is the decoded "cms" object of the query.
type CMSResponse struct {
	PressPhotos struct {
		Items []struct {
			Photo struct {
				Icon   string `json:"icon"`
				Banner string `json:"banner"`
			} `json:"photo"`
		} `json:"items"`
	} `json:"pressPhotos"`
	NextEvent *struct {
		Items []struct {
			Banners *urlList `json:"banners"`
			Icons   *urlList `json:"icons"`
		} `json:"items"`
	} `json:"nextEvent"`
	Logo struct {
		Items []struct {
			LogoWhite *urlItem `json:"logoWhite"`
		} `json:"items"`
	} `json:"logo"`
}

type graphQLResponse struct {
	Data *struct {
		CMS *CMSResponse `json:"cms"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Load queries the CMS and fetches the logo. Nothing is returned unless both
// the reference lists and the logo were obtained.
func (s *GraphQLSource) Load(ctx context.Context) (*Snapshot, error) {
	cms, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	snap := BuildSnapshot(cms)

	logoURL := LogoURL(cms)
	if logoURL == "" {
		return nil, ErrNoLogo
	}
	logo, err := s.fetcher.Fetch(ctx, logoURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch logo: %w", err)
	}
	snap.Logo = logo
	snap.RefreshedAt = s.config.Now()
	return snap, nil
}

// Query performs the GraphQL POST and decodes the cms object.
func (s *GraphQLSource) Query(ctx context.Context) (*CMSResponse, error) {
	now := s.config.Now().UTC()
	body, err := json.Marshal(graphQLRequest{
		Variables: map[string]any{
			"pastEventCutoff":   isoDate(now.Add(-s.config.PastWindow)),
			"futureEventCutoff": isoDate(now.Add(s.config.FutureWindow)),
		},
		Query: s.query,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("catalog: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("catalog: http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("catalog: read body: %w", err)
	}

	var out graphQLResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("catalog: json decode: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("catalog: graphql: %s", strings.Join(msgs, "; "))
	}
	if out.Data == nil || out.Data.CMS == nil {
		return nil, fmt.Errorf("catalog: response has no cms data")
	}
	return out.Data.CMS, nil
}

// BuildSnapshot applies the source policy: press photos are the default pool
// for both size classes; the upcoming event, if any, overrides banners and
// icons independently, each only when it has at least one entry.
func BuildSnapshot(cms *CMSResponse) *Snapshot {
	snap := &Snapshot{IconOrigin: OriginDefault, BannerOrigin: OriginDefault}
	for _, p := range cms.PressPhotos.Items {
		snap.Icons = append(snap.Icons, p.Photo.Icon)
		snap.Banners = append(snap.Banners, p.Photo.Banner)
	}

	if cms.NextEvent == nil || len(cms.NextEvent.Items) == 0 {
		return snap
	}
	event := cms.NextEvent.Items[0]
	if event.Banners != nil && len(event.Banners.Items) > 0 {
		snap.Banners = urls(event.Banners.Items)
		snap.BannerOrigin = OriginEvent
	}
	if event.Icons != nil && len(event.Icons.Items) > 0 {
		snap.Icons = urls(event.Icons.Items)
		snap.IconOrigin = OriginEvent
	}
	return snap
}

// LogoURL returns the white logo URL of the first program, or "".
func LogoURL(cms *CMSResponse) string {
	if len(cms.Logo.Items) == 0 || cms.Logo.Items[0].LogoWhite == nil {
		return ""
	}
	return cms.Logo.Items[0].LogoWhite.URL
}

func urls(items []urlItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.URL
	}
	return out
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}
