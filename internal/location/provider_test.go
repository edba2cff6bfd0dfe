package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
)

func TestHTTPProvider_Success(t *testing.T) {
	var gotCacheControl string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latitude": 26.1, "longitude": 91.7, "accuracy": 8.5}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, 10*time.Second)
	loc, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if loc.Latitude != 26.1 || loc.Longitude != 91.7 {
		t.Errorf("Expected (26.1, 91.7), got (%f, %f)", loc.Latitude, loc.Longitude)
	}
	if loc.AccuracyMeters != 8.5 {
		t.Errorf("Expected accuracy 8.5, got %f", loc.AccuracyMeters)
	}
	if loc.Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
	if gotCacheControl != "no-cache" {
		t.Errorf("Expected Cache-Control: no-cache, got %q", gotCacheControl)
	}
}

func TestHTTPProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "Access denied", status: http.StatusForbidden},
		{name: "Device error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			provider := NewHTTPProvider(server.URL, 10*time.Second)
			_, err := provider.Current(context.Background())
			if err == nil {
				t.Fatal("Expected error, got none")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeLocationUnavailable) {
				t.Errorf("Expected location_unavailable error, got %v", err)
			}
		})
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Current(ctx)
	if err == nil {
		t.Fatal("Expected timeout error, got none")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeLocationUnavailable) {
		t.Errorf("Expected location_unavailable error, got %v", err)
	}
}

func TestStatic_Current(t *testing.T) {
	provider := Static{Latitude: 26.1, Longitude: 91.7, AccuracyMeters: 5}
	loc, err := provider.Current(context.Background())
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if loc.Latitude != 26.1 || loc.Longitude != 91.7 {
		t.Errorf("Expected fixed coordinates, got (%f, %f)", loc.Latitude, loc.Longitude)
	}
}
