package capture

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	apperrors "go-cleanup-agent/internal/errors"
)

func uniformFrame(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCheckFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   image.Image
		wantErr bool
	}{
		{
			name:    "Black frame rejected",
			frame:   uniformFrame(color.RGBA{A: 255}),
			wantErr: true,
		},
		{
			name:    "White frame rejected",
			frame:   uniformFrame(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
			wantErr: true,
		},
		{
			name:    "Mid-gray frame accepted",
			frame:   uniformFrame(color.RGBA{R: 128, G: 128, B: 128, A: 255}),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFrame(tt.frame, DefaultQualityThresholds())
			if tt.wantErr {
				if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
					t.Fatalf("Expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected pass, got: %v", err)
			}
		})
	}
}

func TestCheckFrame_SharpnessGate(t *testing.T) {
	flat := uniformFrame(color.RGBA{R: 128, G: 128, B: 128, A: 255})

	rng := rand.New(rand.NewSource(7))
	noisy := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(rng.Intn(256))
			noisy.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	thresholds := DefaultQualityThresholds()
	thresholds.MinSharpness = 0.001

	if err := CheckFrame(flat, thresholds); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected flat frame rejected by sharpness gate, got %v", err)
	}
	if err := CheckFrame(noisy, thresholds); err != nil {
		t.Errorf("Expected textured frame accepted, got %v", err)
	}
}

func TestMeasureFrame_EmptyImage(t *testing.T) {
	metrics := MeasureFrame(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if metrics.AvgLuminance != 0 || metrics.Sharpness != 0 {
		t.Errorf("Expected zero metrics, got %+v", metrics)
	}
}
