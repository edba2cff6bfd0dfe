package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
)

// Options bound the encoded size of captured frames. The defaults mirror
// field behavior: mobile uplinks choke on multi-megabyte uploads, so quality
// steps down until the image fits or the floor is reached.
type Options struct {
	InitialQuality int
	QualityStep    int
	MinQuality     int
	MaxBytes       int
}

// DefaultOptions returns the documented capture defaults.
func DefaultOptions() Options {
	return Options{
		InitialQuality: 70,
		QualityStep:    10,
		MinQuality:     30,
		MaxBytes:       1000000,
	}
}

// Encoded is an in-memory, size-bounded JPEG produced from a video frame.
type Encoded struct {
	Data       []byte
	Quality    int
	Width      int
	Height     int
	CapturedAt time.Time
}

// DataURL renders the image the way the backend accepts it on the wire.
func (e *Encoded) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// EncodeFrame encodes a frame as JPEG at the initial quality, then reduces
// quality in fixed steps while the result exceeds the byte cap and quality
// remains above the floor. The loop is bounded by the floor, so it always
// terminates; the final image may exceed the cap only at floor quality.
func EncodeFrame(img image.Image, opts Options) (*Encoded, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, apperrors.NewFrameNotReadyError("frame has no dimensions")
	}

	quality := opts.InitialQuality
	data, err := encodeAt(img, quality)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode frame", err)
	}

	for len(data) > opts.MaxBytes && quality-opts.QualityStep >= opts.MinQuality {
		quality -= opts.QualityStep
		data, err = encodeAt(img, quality)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to encode frame", err)
		}
	}

	return &Encoded{
		Data:       data,
		Quality:    quality,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now().UTC(),
	}, nil
}

func encodeAt(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
