// Package composite watermarks base photos with the cached logo.
//
// The logo is scaled to a fixed fraction of the base width and height
// (computed independently), centred, and blended "atop" the base: the logo
// colour shows where the logo is opaque, the base shows through where it is
// transparent, and the base alpha is kept. The base pixels are never resized.
// Output is always JPEG.
package composite

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrComposite wraps every overlay failure.
var ErrComposite = errors.New("composite: overlay failed")

// Config configures the compositor.
type Config struct {
	// LogoScale is the logo size as a fraction of the base. Default: 0.7.
	LogoScale float64 `yaml:"logo_scale"`
	// FallbackWidth/FallbackHeight are assumed when the base reports no
	// dimensions. Default: 512x512.
	FallbackWidth  int `yaml:"fallback_width"`
	FallbackHeight int `yaml:"fallback_height"`
	// JPEGQuality of the output. Default: 80.
	JPEGQuality int `yaml:"jpeg_quality"`
}

func (c *Config) defaults() {
	if c.LogoScale <= 0 || c.LogoScale > 1 {
		c.LogoScale = 0.7
	}
	if c.FallbackWidth <= 0 {
		c.FallbackWidth = 512
	}
	if c.FallbackHeight <= 0 {
		c.FallbackHeight = 512
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 80
	}
}

// Compositor overlays a logo on base images. Safe for concurrent use.
type Compositor struct {
	config Config
}

// New creates a Compositor.
func New(cfg Config) *Compositor {
	cfg.defaults()
	return &Compositor{config: cfg}
}

// LogoSize returns the logo box for a base of w x h: each side scaled and floored.
func LogoSize(w, h int, scale float64) (int, int) {
	return int(math.Floor(float64(w) * scale)), int(math.Floor(float64(h) * scale))
}

// OverlayLogo composites logo onto base and returns the JPEG result.
func (c *Compositor) OverlayLogo(base, logo []byte) ([]byte, error) {
	if len(logo) == 0 {
		return nil, fmt.Errorf("%w: empty logo", ErrComposite)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("%w: base metadata: %w", ErrComposite, err)
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = c.config.FallbackWidth, c.config.FallbackHeight
	}

	baseImg, err := imaging.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("%w: decode base: %w", ErrComposite, err)
	}
	logoImg, err := imaging.Decode(bytes.NewReader(logo))
	if err != nil {
		return nil, fmt.Errorf("%w: decode logo: %w", ErrComposite, err)
	}

	lw, lh := LogoSize(w, h, c.config.LogoScale)
	if lw <= 0 || lh <= 0 {
		return nil, fmt.Errorf("%w: base %dx%d too small for logo", ErrComposite, w, h)
	}
	scaled := imaging.Fill(logoImg, lw, lh, imaging.Center, imaging.Lanczos)

	out := imaging.Clone(baseImg)
	b := out.Bounds()
	at := image.Pt(b.Min.X+(b.Dx()-lw)/2, b.Min.Y+(b.Dy()-lh)/2)
	blendAtop(out, scaled, at)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(c.config.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrComposite, err)
	}
	return buf.Bytes(), nil
}

// blendAtop draws src onto dst at pt with the "atop" operator on
// non-premultiplied pixels: colour = src*a + dst*(1-a), alpha = dst alpha.
func blendAtop(dst *image.NRGBA, src *image.NRGBA, pt image.Point) {
	r := image.Rectangle{Min: pt, Max: pt.Add(src.Bounds().Size())}.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	sp := src.Bounds().Min.Add(r.Min.Sub(pt))

	for y := 0; y < r.Dy(); y++ {
		di := dst.PixOffset(r.Min.X, r.Min.Y+y)
		si := src.PixOffset(sp.X, sp.Y+y)
		for x := 0; x < r.Dx(); x++ {
			a := uint32(src.Pix[si+3])
			if a != 0 {
				for ch := 0; ch < 3; ch++ {
					s := uint32(src.Pix[si+ch])
					d := uint32(dst.Pix[di+ch])
					dst.Pix[di+ch] = uint8((s*a + d*(255-a) + 127) / 255)
				}
			}
			di += 4
			si += 4
		}
	}
}
