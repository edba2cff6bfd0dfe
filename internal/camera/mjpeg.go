package camera

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/logger"

	"github.com/sirupsen/logrus"
)

// MJPEGSource opens a multipart/x-mixed-replace stream from an IP camera or
// companion device. Which physical camera (rear-facing, resolution) is a
// deployment concern of the URL.
type MJPEGSource struct {
	url    string
	client *http.Client
}

// NewMJPEGSource creates a source for the given device URL.
func NewMJPEGSource(url string) *MJPEGSource {
	// No overall client timeout: the stream stays open for the whole
	// session. Dial and header waits are still bounded.
	transport := &http.Transport{
		MaxIdleConns:          2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &MJPEGSource{
		url:    url,
		client: &http.Client{Transport: transport},
	}
}

func (m *MJPEGSource) Open(ctx context.Context) (Stream, error) {
	// The stream outlives the open call; its lifetime is bound to Close,
	// not to the caller's context.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, m.url, nil)
	if err != nil {
		cancel()
		return nil, apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			"invalid camera URL", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		cancel()
		return nil, apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			"cannot access camera", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, mapStatus(resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			fmt.Sprintf("device does not serve an MJPEG stream (content type %q)", mediaType), nil)
	}

	s := &mjpegStream{
		cancel: cancel,
		body:   resp.Body,
		ready:  make(chan struct{}),
	}
	go s.loop(multipart.NewReader(resp.Body, params["boundary"]))
	return s, nil
}

func mapStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonPermission,
			"camera permission denied", nil)
	case http.StatusNotFound:
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonNotFound,
			"no camera found at device URL", nil)
	case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable:
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonBusy,
			"camera is being used by another client", nil)
	default:
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			fmt.Sprintf("camera device returned status %d", status), nil)
	}
}

type mjpegStream struct {
	cancel context.CancelFunc
	body   interface{ Close() error }

	readyOnce sync.Once
	ready     chan struct{}

	mu    sync.Mutex
	frame image.Image
}

func (s *mjpegStream) loop(mr *multipart.Reader) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			// Canceled or device went away; the last frame stays available
			// until the stream is closed.
			logger.ForComponent("camera").WithFields(logrus.Fields{
				"reason": err.Error(),
			}).Debug("MJPEG stream ended")
			return
		}

		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *mjpegStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

func (s *mjpegStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *mjpegStream) Close() error {
	s.cancel()
	return s.body.Close()
}
