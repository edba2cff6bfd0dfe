package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/logger"

	"github.com/sirupsen/logrus"
)

// Client is a thin wrapper around the platform backend's REST API. Workflow
// calls are single-shot: the orchestrator never retries automatically, all
// retries are operator-initiated.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient creates a backend client with a transport tuned for occasional
// large JSON bodies (base64 images).
func NewClient(baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: logger.ForComponent("api"),
	}
}

// Report is a garbage report as served by the backend.
type Report struct {
	ID        string  `json:"id"`
	ImageURL  string  `json:"imageUrl"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	WasteType string  `json:"wasteType"`
	Status    string  `json:"status"`
	Points    int     `json:"points"`
}

// CleaningRequest is the shared body of the verify and mark-cleaned calls.
type CleaningRequest struct {
	ReportID          string `json:"reportId"`
	BeforeImageBase64 string `json:"beforeImageBase64"`
	AfterImageBase64  string `json:"afterImageBase64"`
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	UserType          string `json:"userType"`
}

// CleaningVerdict is the remote before/after comparison outcome.
type CleaningVerdict struct {
	IsCleaned bool   `json:"is_cleaned"`
	Message   string `json:"message"`
}

// CleanupReceipt acknowledges a persisted cleanup.
type CleanupReceipt struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PointsAwarded int    `json:"pointsAwarded"`
}

// GarbageVerdict is the remote is-this-garbage outcome.
type GarbageVerdict struct {
	IsGarbage bool   `json:"is_garbage"`
	Message   string `json:"message"`
}

// UploadResult identifies a stored image.
type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// NearbyReport is one existing report near a candidate location.
type NearbyReport struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Distance  float64 `json:"distance"`
}

// DuplicateCheck is the outcome of the duplicate-location check.
type DuplicateCheck struct {
	IsDuplicate   bool           `json:"is_duplicate"`
	NearbyReports []NearbyReport `json:"nearby_reports"`
}

// ReportRequest creates a new garbage report from an already uploaded image.
type ReportRequest struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	WasteType     string  `json:"wasteType"`
	ImageURL      string  `json:"imageUrl,omitempty"`
	ImagePublicID string  `json:"imagePublicId,omitempty"`
	UserID        string  `json:"userId,omitempty"`
	UserName      string  `json:"userName,omitempty"`
	UserType      string  `json:"userType,omitempty"`
}

// GetReport fetches one report. The backend serves either a {"report": {...}}
// wrapper or the report object at the top level; both are accepted.
func (c *Client) GetReport(ctx context.Context, reportID string) (*Report, error) {
	body, err := c.get(ctx, "/reporting/reports/"+reportID)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Report json.RawMessage `json:"report"`
	}
	raw := body
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Report) > 0 {
		raw = wrapper.Report
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, apperrors.NewNetworkError("malformed report response", err)
	}
	if report.ID == "" {
		report.ID = reportID
	}
	return &report, nil
}

// VerifyCleaning asks the backend to compare before and after images.
func (c *Client) VerifyCleaning(ctx context.Context, req CleaningRequest) (*CleaningVerdict, error) {
	var verdict CleaningVerdict
	if err := c.post(ctx, "/cleaning/verify", req, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// MarkCleaned persists a verified cleanup.
func (c *Client) MarkCleaned(ctx context.Context, req CleaningRequest) (*CleanupReceipt, error) {
	var receipt CleanupReceipt
	if err := c.post(ctx, "/cleaning/mark-cleaned", req, &receipt); err != nil {
		return nil, err
	}
	if !receipt.Success {
		return nil, apperrors.NewNetworkError("submission refused", errors.New(receipt.Message))
	}
	return &receipt, nil
}

// VerifyImage asks the backend whether the image shows garbage.
func (c *Client) VerifyImage(ctx context.Context, imageBase64 string) (*GarbageVerdict, error) {
	var verdict GarbageVerdict
	body := map[string]string{"image_base64": imageBase64}
	if err := c.post(ctx, "/reporting/verify-image", body, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// UploadImage stores an image and returns its URL and public id.
func (c *Client) UploadImage(ctx context.Context, imageBase64 string) (*UploadResult, error) {
	var result UploadResult
	body := map[string]string{"image_base64": imageBase64}
	if err := c.post(ctx, "/reporting/upload-image", body, &result); err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, apperrors.NewNetworkError("upload returned no URL", nil)
	}
	return &result, nil
}

// DeleteImage removes a previously uploaded image. Best-effort on the
// caller's side; the backend tolerates already-deleted ids.
func (c *Client) DeleteImage(ctx context.Context, publicID string) error {
	body := map[string]string{"public_id": publicID}
	return c.post(ctx, "/reporting/delete-image", body, nil)
}

// CheckDuplicateLocation asks whether a location already has a report within
// the given radius.
func (c *Client) CheckDuplicateLocation(ctx context.Context, latitude, longitude, radiusMeters float64) (*DuplicateCheck, error) {
	var check DuplicateCheck
	body := map[string]float64{
		"latitude":  latitude,
		"longitude": longitude,
		"radius":    radiusMeters,
	}
	if err := c.post(ctx, "/location/check-duplicate", body, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// CreateReport persists a new garbage report.
func (c *Client) CreateReport(ctx context.Context, req ReportRequest) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/reporting/report", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apperrors.NewNetworkError("report refused", errors.New(resp.Message))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, path)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewInternalError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewInternalError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.NewNetworkError("malformed response from "+path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewNetworkError("backend call timed out", err)
		}
		return nil, apperrors.NewNetworkError("backend unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read backend response", err)
	}

	c.log.WithFields(logrus.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Backend call completed")

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("resource not found: "+path, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, detailMessage(body)), nil)
	}
	return body, nil
}

// detailMessage pulls the human-readable detail field out of a backend error
// body, falling back to the raw body.
func detailMessage(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
