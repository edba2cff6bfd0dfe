package capture

import (
	"image"

	apperrors "go-cleanup-agent/internal/errors"

	"gonum.org/v1/gonum/stat"
)

// FrameMetrics are the measurements used to screen a frame before it is sent
// for remote verification.
type FrameMetrics struct {
	AvgLuminance float64 // mean pixel luminance in [0,1]
	Sharpness    float64 // variance of the Laplacian response
}

// QualityThresholds gate obviously unusable frames: a covered lens, a frame
// shot into a light source, or a completely defocused capture. The defaults
// are loose on purpose; outdoor cleanup photos vary a lot and the remote
// verifier makes the real call.
type QualityThresholds struct {
	MinLuminance float64
	MaxLuminance float64
	MinSharpness float64 // 0 disables the sharpness gate
}

func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLuminance: 0.02,
		MaxLuminance: 0.98,
	}
}

// MeasureFrame computes the screening metrics for a frame.
func MeasureFrame(img image.Image) FrameMetrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return FrameMetrics{}
	}

	// Luminance plane, row-major
	lum := make([]float64, 0, width*height)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			lum = append(lum, luminanceOf(
				float64(r)/65535.0,
				float64(g)/65535.0,
				float64(b)/65535.0,
			))
		}
	}

	metrics := FrameMetrics{AvgLuminance: stat.Mean(lum, nil)}

	if width > 2 && height > 2 {
		// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
		responses := make([]float64, 0, (width-2)*(height-2))
		at := func(x, y int) float64 { return lum[y*width+x] }
		for y := 1; y < height-1; y++ {
			for x := 1; x < width-1; x++ {
				responses = append(responses,
					-4*at(x, y)+at(x, y-1)+at(x, y+1)+at(x-1, y)+at(x+1, y))
			}
		}
		metrics.Sharpness = stat.Variance(responses, nil)
	}
	return metrics
}

// CheckFrame rejects frames that would waste a remote verification call. The
// returned error carries an operator-facing message.
func CheckFrame(img image.Image, t QualityThresholds) error {
	metrics := MeasureFrame(img)

	if metrics.AvgLuminance <= t.MinLuminance {
		return apperrors.NewValidationError("Image is too dark. Uncover the lens or use more light.", nil)
	}
	if metrics.AvgLuminance >= t.MaxLuminance {
		return apperrors.NewValidationError("Image is too bright. Avoid pointing at light sources.", nil)
	}
	if t.MinSharpness > 0 && metrics.Sharpness < t.MinSharpness {
		return apperrors.NewValidationError("Image is blurry. Hold the camera steady and try again.", nil)
	}
	return nil
}

// luminanceOf is the HSV value component: the max channel.
func luminanceOf(r, g, b float64) float64 {
	v := r
	if g > v {
		v = g
	}
	if b > v {
		v = b
	}
	return v
}
