package bgnormalize

import "errors"

// Sentinel errors. Functions wrap them with context via fmt.Errorf("...: %w"),
// so callers match with errors.Is.
var (
	// ErrNilGrid is returned when a required grid argument is nil.
	ErrNilGrid = errors.New("bgnormalize: nil grid")

	// ErrBadShape is returned for a non-positive width or height.
	ErrBadShape = errors.New("bgnormalize: invalid grid shape")

	// ErrShapeMismatch is returned when grids taking part in one operation
	// differ in width or height. No partial computation is attempted.
	ErrShapeMismatch = errors.New("bgnormalize: grid shape mismatch")

	// ErrInvalidDegree is returned for a negative maximum polynomial degree.
	ErrInvalidDegree = errors.New("bgnormalize: polynomial degree must be >= 0")

	// ErrInvalidSamplingStep is returned for a sampling step below 1.
	ErrInvalidSamplingStep = errors.New("bgnormalize: sampling step must be >= 1")

	// ErrInsufficientSamples is returned when fewer masked samples survive the
	// sampling stride than the basis has coefficients.
	ErrInsufficientSamples = errors.New("bgnormalize: insufficient masked samples")

	// ErrIllConditioned is returned when the least-squares system is singular
	// or too badly conditioned to trust the coefficients.
	ErrIllConditioned = errors.New("bgnormalize: ill-conditioned least-squares system")

	// ErrUnsupportedArity is returned for a channel count other than 1 or 3.
	ErrUnsupportedArity = errors.New("bgnormalize: unsupported channel count")

	// ErrInvalidBounds is returned when the normalization bounds are equal or
	// not finite.
	ErrInvalidBounds = errors.New("bgnormalize: invalid normalization bounds")
)
