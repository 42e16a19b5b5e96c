package bgnormalize

import (
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// NormalizeBrightBackground divides img by the background estimate bg and
// maps the ratio range [lower, upper] onto [0, 255], rounding and saturating.
//
// A background value of exactly 0 yields 255, the value a positive ratio
// diverging to +Inf saturates to. A NaN ratio yields 0.
func NormalizeBrightBackground[T Sample](img *Grid[T], bg *Grid[float64], lower, upper float64) (*Grid[uint8], error) {
	if img.Empty() || bg.Empty() {
		return nil, fmt.Errorf("normalize: %w", ErrNilGrid)
	}
	if err := checkShapes(img.W, img.H, bg.W, bg.H); err != nil {
		return nil, fmt.Errorf("normalize image/background: %w", err)
	}
	if err := checkBounds(lower, upper); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	w := img.W
	out := NewGrid[uint8](w, img.H)
	scale := 255 / (upper - lower)
	var zeros atomic.Int64

	forEachRowBand(img.H, func(y0, y1 int) {
		n := int64(0)
		for y := y0; y < y1; y++ {
			src := img.Row(y)
			back := bg.Row(y)
			dst := out.Row(y)
			for x := range w {
				if back[x] == 0 {
					dst[x] = 255
					n++
					continue
				}
				dst[x] = saturate8((float64(src[x])/back[x] - lower) * scale)
			}
		}
		if n > 0 {
			zeros.Add(n)
		}
	})

	if n := zeros.Load(); n > 0 {
		logger.Debug().Int64("pixels", n).Msg("zero background saturated to 255")
	}
	return out, nil
}

// saturate8 rounds v to the nearest integer and clamps it to [0, 255].
func saturate8(v float64) uint8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	case v <= 0:
		return 0
	}
	return uint8(math.Round(v))
}

// QuantizeSurface rounds a fitted surface to 8 bits, saturating values
// outside [0, 255].
func QuantizeSurface(bg *Grid[float64]) *Grid[uint8] {
	if bg.Empty() {
		return &Grid[uint8]{}
	}
	out := NewGrid[uint8](bg.W, bg.H)
	for i, v := range bg.Pix {
		out.Pix[i] = saturate8(v)
	}
	return out
}

// NormalizeBackground fits an independent background model to every channel
// using the shared mask and returns the normalized channels. Only 1 (gray) or
// 3 (RGB) channels are accepted.
func NormalizeBackground(channels []*Grid[uint8], mask *Grid[bool], opt Options) ([]*Grid[uint8], error) {
	if n := len(channels); n != 1 && n != 3 {
		return nil, fmt.Errorf("normalize background: got %d channels, want 1 or 3: %w", n, ErrUnsupportedArity)
	}
	if err := opt.Validate(); err != nil {
		return nil, fmt.Errorf("normalize background: %w", err)
	}
	if mask.Empty() {
		return nil, fmt.Errorf("normalize background mask: %w", ErrNilGrid)
	}
	for c, ch := range channels {
		if ch.Empty() {
			return nil, fmt.Errorf("normalize background channel %d: %w", c, ErrNilGrid)
		}
		if err := checkShapes(ch.W, ch.H, mask.W, mask.H); err != nil {
			return nil, fmt.Errorf("normalize background channel %d/mask: %w", c, err)
		}
	}

	out := make([]*Grid[uint8], len(channels))
	var g errgroup.Group
	for c := range channels {
		g.Go(func() error {
			bg, model, err := FitBackground(channels[c], mask, opt)
			if err != nil {
				return fmt.Errorf("channel %d: %w", c, err)
			}
			res, err := NormalizeBrightBackground(channels[c], bg, opt.Lower, opt.Upper)
			if err != nil {
				return fmt.Errorf("channel %d: %w", c, err)
			}
			logger.Debug().
				Int("channel", c).
				Int("samples", model.Samples).
				Float64("rms", model.RMS).
				Msg("channel normalized")
			out[c] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
