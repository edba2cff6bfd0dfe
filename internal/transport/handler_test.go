package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-cleanup-agent/internal/api"
	"go-cleanup-agent/internal/camera"
	"go-cleanup-agent/internal/config"
	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/observer"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStream struct {
	frame image.Image
	ready chan struct{}
}

func newFakeStream() *fakeStream {
	ready := make(chan struct{})
	close(ready)
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 130, B: 110, A: 255})
		}
	}
	return &fakeStream{frame: img, ready: ready}
}

func (f *fakeStream) Frame() (image.Image, bool) { return f.frame, true }
func (f *fakeStream) Ready() <-chan struct{}     { return f.ready }
func (f *fakeStream) Close() error               { return nil }

type fakeSource struct{}

func (fakeSource) Open(ctx context.Context) (camera.Stream, error) {
	return newFakeStream(), nil
}

type fakeBackend struct {
	report *api.Report
}

func (f *fakeBackend) GetReport(ctx context.Context, reportID string) (*api.Report, error) {
	if f.report == nil || f.report.ID != reportID {
		return nil, apperrors.NewNotFoundError("report not found", nil)
	}
	return f.report, nil
}

func (f *fakeBackend) VerifyCleaning(ctx context.Context, req api.CleaningRequest) (*api.CleaningVerdict, error) {
	return &api.CleaningVerdict{IsCleaned: true, Message: "Area is cleaned"}, nil
}

func (f *fakeBackend) MarkCleaned(ctx context.Context, req api.CleaningRequest) (*api.CleanupReceipt, error) {
	return &api.CleanupReceipt{Success: true, Message: "Marked!", PointsAwarded: 30}, nil
}

func (f *fakeBackend) VerifyImage(ctx context.Context, imageBase64 string) (*api.GarbageVerdict, error) {
	return &api.GarbageVerdict{IsGarbage: true, Message: "Garbage detected"}, nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, imageBase64 string) (*api.UploadResult, error) {
	return &api.UploadResult{URL: "https://cdn/abc.jpg", PublicID: "abc"}, nil
}

func (f *fakeBackend) DeleteImage(ctx context.Context, publicID string) error { return nil }

func (f *fakeBackend) CheckDuplicateLocation(ctx context.Context, latitude, longitude, radiusMeters float64) (*api.DuplicateCheck, error) {
	return &api.DuplicateCheck{}, nil
}

func (f *fakeBackend) CreateReport(ctx context.Context, req api.ReportRequest) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Host:                "127.0.0.1",
		Port:                "8080",
		RequestTimeout:      5 * time.Second,
		APIBaseURL:          "http://backend",
		APITimeout:          5 * time.Second,
		ProximityThresholdM: 50,
		LocationTimeout:     time.Second,
		CameraWarmup:        50 * time.Millisecond,
		CaptureMaxBytes:     1000000,
		CaptureQuality:      70,
		CaptureMinQuality:   30,
		CaptureQualityStep:  10,
		DuplicateRadiusM:    100,
	}
}

func newTestHandler(backend Backend) http.Handler {
	return NewHandler(Deps{
		Config:  testConfig(),
		Backend: backend,
		Camera:  fakeSource{},
		Events:  observer.NewDispatcher(),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestHealthCheck(t *testing.T) {
	w, body := doJSON(t, newTestHandler(&fakeBackend{}), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["status"] != "available" {
		t.Errorf("Unexpected status %v", body["status"])
	}
}

func TestStartCleanup_UnknownReport(t *testing.T) {
	h := newTestHandler(&fakeBackend{})
	w, _ := doJSON(t, h, http.MethodPost, "/cleanups", map[string]interface{}{
		"report_id": "missing",
		"operator":  map[string]string{"id": "u1", "name": "Asha"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

func TestStartCleanup_AlreadyCleaned(t *testing.T) {
	h := newTestHandler(&fakeBackend{report: &api.Report{ID: "r1", Status: "cleaned"}})
	w, _ := doJSON(t, h, http.MethodPost, "/cleanups", map[string]interface{}{
		"report_id": "r1",
		"operator":  map[string]string{"id": "u1", "name": "Asha"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestCleanupFlow_OverHTTP(t *testing.T) {
	backend := &fakeBackend{report: &api.Report{
		ID:        "r1",
		ImageURL:  "https://img/before.jpg",
		Latitude:  26.1,
		Longitude: 91.7,
		WasteType: "plastic",
		Status:    "active",
	}}
	h := newTestHandler(backend)

	w, body := doJSON(t, h, http.MethodPost, "/cleanups", map[string]interface{}{
		"report_id": "r1",
		"operator":  map[string]string{"id": "u1", "name": "Asha", "type": "individual"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("Expected a session id")
	}
	base := "/cleanups/" + id

	// In-range operator position supplied directly
	w, body = doJSON(t, h, http.MethodPost, base+"/location", map[string]float64{
		"latitude": 26.1, "longitude": 91.70005, "accuracy": 8,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Location: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != "ready" {
		t.Fatalf("Expected ready, got %v", body["state"])
	}

	w, body = doJSON(t, h, http.MethodPost, base+"/camera", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Camera: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != "camera_active" {
		t.Fatalf("Expected camera_active, got %v", body["state"])
	}

	w, body = doJSON(t, h, http.MethodPost, base+"/capture", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Capture: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != "verified_positive" {
		t.Fatalf("Expected verified_positive, got %v", body["state"])
	}

	w, body = doJSON(t, h, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != "submitted" {
		t.Fatalf("Expected submitted, got %v", body["state"])
	}
	if body["points_awarded"] != float64(30) {
		t.Errorf("Expected 30 points, got %v", body["points_awarded"])
	}

	w, _ = doJSON(t, h, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Delete: expected 204, got %d", w.Code)
	}
	w, _ = doJSON(t, h, http.MethodGet, base, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestCleanup_OutOfRangePositionBlocksCamera(t *testing.T) {
	backend := &fakeBackend{report: &api.Report{ID: "r1", Latitude: 26.1, Longitude: 91.7, Status: "active"}}
	h := newTestHandler(backend)

	_, body := doJSON(t, h, http.MethodPost, "/cleanups", map[string]interface{}{
		"report_id": "r1",
		"operator":  map[string]string{"id": "u1", "name": "Asha"},
	})
	base := "/cleanups/" + body["id"].(string)

	w, body := doJSON(t, h, http.MethodPost, base+"/location", map[string]float64{
		"latitude": 26.1, "longitude": 91.702,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Location: expected 200, got %d", w.Code)
	}
	if body["state"] != "out_of_range" {
		t.Fatalf("Expected out_of_range, got %v", body["state"])
	}

	w, _ = doJSON(t, h, http.MethodPost, base+"/camera", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 opening camera out of range, got %d", w.Code)
	}
}

func TestCleanupLocation_RejectsBadCoordinates(t *testing.T) {
	backend := &fakeBackend{report: &api.Report{ID: "r1", Latitude: 26.1, Longitude: 91.7, Status: "active"}}
	h := newTestHandler(backend)

	_, body := doJSON(t, h, http.MethodPost, "/cleanups", map[string]interface{}{
		"report_id": "r1",
		"operator":  map[string]string{"id": "u1", "name": "Asha"},
	})
	base := "/cleanups/" + body["id"].(string)

	w, _ := doJSON(t, h, http.MethodPost, base+"/location", map[string]float64{
		"latitude": 112.0, "longitude": 91.7,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for out-of-range latitude, got %d", w.Code)
	}
}

func TestReportFlow_OverHTTP(t *testing.T) {
	h := newTestHandler(&fakeBackend{})

	w, body := doJSON(t, h, http.MethodPost, "/reports", map[string]interface{}{
		"waste_type": "mixed",
		"operator":   map[string]string{"id": "u1", "name": "Asha"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	base := "/reports/" + body["id"].(string)

	w, body = doJSON(t, h, http.MethodPost, base+"/location", map[string]float64{
		"latitude": 26.12, "longitude": 91.71,
	})
	if w.Code != http.StatusOK || body["state"] != "ready" {
		t.Fatalf("Location: expected ready, got %d %v", w.Code, body["state"])
	}

	doJSON(t, h, http.MethodPost, base+"/camera", nil)
	w, body = doJSON(t, h, http.MethodPost, base+"/capture", nil)
	if w.Code != http.StatusOK || body["state"] != "verified_positive" {
		t.Fatalf("Capture: expected verified_positive, got %d %v", w.Code, body["state"])
	}
	if body["image_url"] != "https://cdn/abc.jpg" {
		t.Errorf("Expected uploaded image URL, got %v", body["image_url"])
	}

	// Retake drops the upload and reopens the camera
	w, body = doJSON(t, h, http.MethodPost, base+"/retake", nil)
	if w.Code != http.StatusOK || body["state"] != "camera_active" {
		t.Fatalf("Retake: expected camera_active, got %d %v", w.Code, body["state"])
	}

	w, body = doJSON(t, h, http.MethodPost, base+"/capture", nil)
	if w.Code != http.StatusOK || body["state"] != "verified_positive" {
		t.Fatalf("Re-capture: expected verified_positive, got %d %v", w.Code, body["state"])
	}

	w, body = doJSON(t, h, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusOK || body["state"] != "submitted" {
		t.Fatalf("Submit: expected submitted, got %d %v", w.Code, body["state"])
	}
}

func TestStartReport_InvalidWasteType(t *testing.T) {
	h := newTestHandler(&fakeBackend{})
	w, _ := doJSON(t, h, http.MethodPost, "/reports", map[string]interface{}{
		"waste_type": "radioactive",
		"operator":   map[string]string{"id": "u1", "name": "Asha"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	h := newTestHandler(&fakeBackend{})
	for _, path := range []string{"/cleanups/nope", "/reports/nope"} {
		w, _ := doJSON(t, h, http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, w.Code)
		}
	}
}
