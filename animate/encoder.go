// Package animate assembles still frames into an animated GIF.
package animate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	_ "golang.org/x/image/webp"
)

// ErrEncode wraps every encoding failure.
var ErrEncode = errors.New("animate: encode failed")

// Config configures the encoder.
type Config struct {
	// Quality 1..100 controls palette sampling density; higher samples more
	// pixels. Default: 75.
	Quality int `yaml:"quality"`
	// Background clears the canvas before each frame. Default: white.
	Background color.NRGBA `yaml:"-"`
	// FallbackWidth/FallbackHeight size the canvas when the first frame has no
	// dimensions. Default: 512x512.
	FallbackWidth  int `yaml:"fallback_width"`
	FallbackHeight int `yaml:"fallback_height"`
}

func (c *Config) defaults() {
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 75
	}
	if c.Background == (color.NRGBA{}) {
		c.Background = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	if c.FallbackWidth <= 0 {
		c.FallbackWidth = 512
	}
	if c.FallbackHeight <= 0 {
		c.FallbackHeight = 512
	}
}

// Encoder builds GIFs. Safe for concurrent use; each call owns its canvas.
type Encoder struct {
	config    Config
	quantizer quantize.MedianCutQuantizer
}

// New creates an Encoder.
func New(cfg Config) *Encoder {
	cfg.defaults()
	return &Encoder{
		config:    cfg,
		quantizer: quantize.MedianCutQuantizer{Weighting: strideWeighting(sampleStride(cfg.Quality))},
	}
}

// EncodeAnimation encodes frames in order with a fixed delay. loopCount 0
// loops forever. Nothing is returned unless every frame was encoded.
func (e *Encoder) EncodeAnimation(frames [][]byte, delay time.Duration, loopCount int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncode)
	}
	if delay <= 0 {
		return nil, fmt.Errorf("%w: delay must be positive, got %v", ErrEncode, delay)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(frames[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: frame 0 metadata: %w", ErrEncode, err)
	}
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = e.config.FallbackWidth, e.config.FallbackHeight
	}
	bounds := image.Rect(0, 0, w, h)

	anim := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(frames)),
		Delay:     make([]int, 0, len(frames)),
		LoopCount: loopCount,
	}
	centis := int(delay / (10 * time.Millisecond))
	canvas := image.NewNRGBA(bounds)
	bg := image.NewUniform(e.config.Background)

	for i, raw := range frames {
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrEncode, i, err)
		}
		draw.Draw(canvas, bounds, bg, image.Point{}, draw.Src)
		draw.Draw(canvas, bounds, img, img.Bounds().Min, draw.Over)

		palette := e.quantizer.Quantize(make(color.Palette, 0, 256), canvas)
		frame := image.NewPaletted(bounds, palette)
		draw.FloydSteinberg.Draw(frame, bounds, canvas, image.Point{})

		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, centis)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// sampleStride maps quality 100 to every pixel and quality 1 to every 10th.
func sampleStride(quality int) int {
	return 1 + (100-quality)/11
}

// strideWeighting counts one pixel in every stride (row-major) towards the
// palette; the others weigh zero and are skipped.
func strideWeighting(stride int) func(image.Image, int, int) uint32 {
	return func(m image.Image, x, y int) uint32 {
		b := m.Bounds()
		if ((y-b.Min.Y)*b.Dx()+(x-b.Min.X))%stride == 0 {
			return 1
		}
		return 0
	}
}
