package bgnormalize

import (
	"fmt"
	"image"
	"math"
)

type Options struct {
	// Maximum total degree of the background polynomial.
	// Ideal start: 2. Use 3-4 for strongly curved illumination.
	// Too high => the surface starts following foreground structures.
	MaxDegree int
	// Stride of the mask scan in both axes when collecting fit samples.
	// Ideal start: 1 for small images, 2-4 for camera frames.
	// Higher => faster fit, fewer samples; must leave at least NumCoeffs(MaxDegree) samples.
	SamplingStep int
	// Ratio image/background mapped to 0.
	// Ideal start: 0.0. Raise it to stretch contrast of dark structures.
	Lower float64
	// Ratio image/background mapped to 255.
	// Ideal start: 1.0 for a bright background.
	Upper float64
}

func DefaultOptions() Options {
	return Options{
		MaxDegree:    2,
		SamplingStep: 4,
		Lower:        0.0,
		Upper:        1.0,
	}
}

// OptionsFromSize picks a sampling step that keeps the design matrix tractable
// for the given image size.
func OptionsFromSize(size image.Point) Options {
	opt := DefaultOptions()
	if size.X <= 0 || size.Y <= 0 {
		return opt
	}
	pixels := size.X * size.Y
	switch {
	case pixels <= 512*512:
		opt.SamplingStep = 1
	case pixels <= 1920*1080:
		opt.SamplingStep = 2
	default:
		opt.SamplingStep = 4
	}
	return opt
}

func (o Options) Validate() error {
	if o.MaxDegree < 0 {
		return fmt.Errorf("degree %d: %w", o.MaxDegree, ErrInvalidDegree)
	}
	if o.SamplingStep < 1 {
		return fmt.Errorf("step %d: %w", o.SamplingStep, ErrInvalidSamplingStep)
	}
	return checkBounds(o.Lower, o.Upper)
}

func checkBounds(lower, upper float64) error {
	if math.IsNaN(lower) || math.IsInf(lower, 0) || math.IsNaN(upper) || math.IsInf(upper, 0) {
		return fmt.Errorf("[%g, %g]: %w", lower, upper, ErrInvalidBounds)
	}
	if lower == upper {
		return fmt.Errorf("lower == upper == %g: %w", lower, ErrInvalidBounds)
	}
	return nil
}
