package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go-cleanup-agent/internal/api"
	"go-cleanup-agent/internal/camera"
	"go-cleanup-agent/internal/capture"
	"go-cleanup-agent/internal/config"
	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/evidence"
	"go-cleanup-agent/internal/location"
	"go-cleanup-agent/internal/logger"
	"go-cleanup-agent/internal/observer"
	"go-cleanup-agent/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxRequestBody bounds control-plane request bodies; sessions never accept
// image payloads over this surface.
const maxRequestBody = 1 << 20

// Backend is the full platform API surface the handler wires into sessions.
type Backend interface {
	workflow.CleaningBackend
	workflow.ReportingBackend
	GetReport(ctx context.Context, reportID string) (*api.Report, error)
}

// Deps are the wired collaborators handed to every session the handler
// creates. Location, Camera and Archiver may be nil for deployments without
// the capability.
type Deps struct {
	Config   *config.Config
	Backend  Backend
	Location location.Provider
	Camera   camera.Source
	Archiver evidence.Archiver
	Events   *observer.Dispatcher
}

type operatorPayload struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
	Type string `json:"type"`
}

type startCleanupRequest struct {
	ReportID string          `json:"report_id" binding:"required"`
	Operator operatorPayload `json:"operator" binding:"required"`
}

type startReportRequest struct {
	WasteType string          `json:"waste_type" binding:"required"`
	Operator  operatorPayload `json:"operator" binding:"required"`
}

// locationPayload is the optional body of the location endpoints. When
// coordinates are supplied they are gated directly; otherwise the configured
// provider is read.
type locationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler owns the live workflow sessions and exposes them over HTTP.
type Handler struct {
	deps     Deps
	mu       sync.RWMutex
	cleanups map[string]*workflow.CleanupSession
	reports  map[string]*workflow.ReportSession
}

func NewHandler(deps Deps) http.Handler {
	h := &Handler{
		deps:     deps,
		cleanups: make(map[string]*workflow.CleanupSession),
		reports:  make(map[string]*workflow.ReportSession),
	}

	r := gin.Default()
	r.Use(requestSizeLimiter(maxRequestBody))

	r.GET("/health", healthCheck)

	r.POST("/cleanups", h.startCleanup)
	r.GET("/cleanups/:id", h.getCleanup)
	r.DELETE("/cleanups/:id", h.closeCleanup)
	r.POST("/cleanups/:id/location", h.cleanupLocation)
	r.POST("/cleanups/:id/camera", h.cleanupCamera)
	r.POST("/cleanups/:id/capture", h.cleanupCapture)
	r.POST("/cleanups/:id/submit", h.cleanupSubmit)

	r.POST("/reports", h.startReport)
	r.GET("/reports/:id", h.getReport)
	r.DELETE("/reports/:id", h.closeReport)
	r.POST("/reports/:id/location", h.reportLocation)
	r.POST("/reports/:id/camera", h.reportCamera)
	r.POST("/reports/:id/capture", h.reportCapture)
	r.POST("/reports/:id/retake", h.reportRetake)
	r.POST("/reports/:id/submit", h.reportSubmit)

	return r
}

// newCameraSession builds a per-session camera. A missing source still gets
// a session; opening it fails with a not-found reason.
func (h *Handler) newCameraSession() *camera.Session {
	source := h.deps.Camera
	if source == nil {
		source = camera.NoDevice{}
	}
	return camera.NewSession(source, h.deps.Config.CameraWarmup)
}

func (h *Handler) encodeOptions() capture.Options {
	cfg := h.deps.Config
	return capture.Options{
		InitialQuality: cfg.CaptureQuality,
		QualityStep:    cfg.CaptureQualityStep,
		MinQuality:     cfg.CaptureMinQuality,
		MaxBytes:       cfg.CaptureMaxBytes,
	}
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.deps.Config.RequestTimeout)
}

func (h *Handler) startCleanup(c *gin.Context) {
	var req startCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	report, err := h.deps.Backend.GetReport(ctx, req.ReportID)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to load report", err)
		return
	}
	if report.Status == string(workflow.TaskCleaned) {
		err := apperrors.NewValidationError("report is already cleaned", nil)
		respondError(c, apperrors.GetStatusCode(err), "report not cleanable", err)
		return
	}

	task := workflow.CleanupTask{
		ID:             report.ID,
		BeforeImageRef: report.ImageURL,
		Latitude:       report.Latitude,
		Longitude:      report.Longitude,
		WasteType:      workflow.WasteType(report.WasteType),
		Status:         workflow.TaskActive,
	}
	session := workflow.NewCleanupSession(task, operatorFrom(req.Operator), workflow.CleanupDeps{
		Location: h.deps.Location,
		Camera:   h.newCameraSession(),
		Backend:  h.deps.Backend,
		Archiver: h.deps.Archiver,
		Events:   h.deps.Events,
	}, workflow.CleanupConfig{
		ProximityThresholdM: h.deps.Config.ProximityThresholdM,
		LocationTimeout:     h.deps.Config.LocationTimeout,
		Encode:              h.encodeOptions(),
	})

	h.mu.Lock()
	h.cleanups[session.ID()] = session
	h.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"session_id": session.ID(),
		"report_id":  req.ReportID,
		"ip":         c.ClientIP(),
	}).Info("Cleanup session started")

	c.JSON(http.StatusCreated, session.Snapshot())
}

func (h *Handler) cleanupSession(c *gin.Context) *workflow.CleanupSession {
	h.mu.RLock()
	session, ok := h.cleanups[c.Param("id")]
	h.mu.RUnlock()
	if !ok {
		err := apperrors.NewNotFoundError("unknown cleanup session", nil)
		respondError(c, apperrors.GetStatusCode(err), "session not found", err)
		return nil
	}
	return session
}

func (h *Handler) getCleanup(c *gin.Context) {
	if session := h.cleanupSession(c); session != nil {
		c.JSON(http.StatusOK, session.Snapshot())
	}
}

func (h *Handler) closeCleanup(c *gin.Context) {
	session := h.cleanupSession(c)
	if session == nil {
		return
	}
	session.Close()
	h.mu.Lock()
	delete(h.cleanups, session.ID())
	h.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (h *Handler) cleanupLocation(c *gin.Context) {
	session := h.cleanupSession(c)
	if session == nil {
		return
	}
	payload, err := bindLocation(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	if payload != nil {
		if _, err := session.SubmitLocation(location.Location{
			Latitude:       *payload.Latitude,
			Longitude:      *payload.Longitude,
			AccuracyMeters: payload.Accuracy,
		}); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "location rejected", err)
			return
		}
		c.JSON(http.StatusOK, session.Snapshot())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	if _, err := session.AcquireLocation(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "location unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) cleanupCamera(c *gin.Context) {
	session := h.cleanupSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := session.OpenCamera(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "camera unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) cleanupCapture(c *gin.Context) {
	session := h.cleanupSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if _, err := session.CaptureAndVerify(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "capture failed", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) cleanupSubmit(c *gin.Context) {
	session := h.cleanupSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if _, err := session.Submit(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "submission failed", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) startReport(c *gin.Context) {
	var req startReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	session, err := workflow.NewReportSession(
		workflow.WasteType(req.WasteType),
		operatorFrom(req.Operator),
		workflow.ReportDeps{
			Location: h.deps.Location,
			Camera:   h.newCameraSession(),
			Backend:  h.deps.Backend,
			Events:   h.deps.Events,
		},
		workflow.ReportConfig{
			DuplicateRadiusM: h.deps.Config.DuplicateRadiusM,
			LocationTimeout:  h.deps.Config.LocationTimeout,
			Encode:           h.encodeOptions(),
		},
	)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid report request", err)
		return
	}

	h.mu.Lock()
	h.reports[session.ID()] = session
	h.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"session_id": session.ID(),
		"waste_type": req.WasteType,
		"ip":         c.ClientIP(),
	}).Info("Report session started")

	c.JSON(http.StatusCreated, session.Snapshot())
}

func (h *Handler) reportSession(c *gin.Context) *workflow.ReportSession {
	h.mu.RLock()
	session, ok := h.reports[c.Param("id")]
	h.mu.RUnlock()
	if !ok {
		err := apperrors.NewNotFoundError("unknown report session", nil)
		respondError(c, apperrors.GetStatusCode(err), "session not found", err)
		return nil
	}
	return session
}

func (h *Handler) getReport(c *gin.Context) {
	if session := h.reportSession(c); session != nil {
		c.JSON(http.StatusOK, session.Snapshot())
	}
}

func (h *Handler) closeReport(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	session.Close()
	h.mu.Lock()
	delete(h.reports, session.ID())
	h.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (h *Handler) reportLocation(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	payload, err := bindLocation(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	if payload != nil {
		if _, err := session.SubmitLocation(location.Location{
			Latitude:       *payload.Latitude,
			Longitude:      *payload.Longitude,
			AccuracyMeters: payload.Accuracy,
		}); err != nil {
			respondError(c, apperrors.GetStatusCode(err), "location rejected", err)
			return
		}
		c.JSON(http.StatusOK, session.Snapshot())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	if _, err := session.AcquireLocation(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "location unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) reportCamera(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := session.OpenCamera(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "camera unavailable", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) reportCapture(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if _, err := session.CaptureAndVerify(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "capture failed", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) reportRetake(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := session.Retake(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "retake failed", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func (h *Handler) reportSubmit(c *gin.Context) {
	session := h.reportSession(c)
	if session == nil {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := session.Submit(ctx); err != nil {
		respondError(c, apperrors.GetStatusCode(err), "submission failed", err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

func operatorFrom(p operatorPayload) workflow.Operator {
	opType := p.Type
	if opType == "" {
		opType = "individual"
	}
	return workflow.Operator{ID: p.ID, Name: p.Name, Type: opType}
}

// bindLocation returns the decoded payload, or nil when the request carries
// no coordinates and the provider should be read instead.
func bindLocation(c *gin.Context) (*locationPayload, error) {
	if c.Request.ContentLength == 0 {
		return nil, nil
	}
	var payload locationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, err
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		return nil, nil
	}
	if *payload.Latitude < -90 || *payload.Latitude > 90 ||
		*payload.Longitude < -180 || *payload.Longitude > 180 {
		return nil, apperrors.NewValidationError("coordinates out of range", nil)
	}
	return &payload, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message + ": " + err.Error(),
	})
}
