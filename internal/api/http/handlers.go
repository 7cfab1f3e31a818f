// Package http exposes the engine over REST: registration and publishing
// for operators, update checks and ranged package downloads for clients.
package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/api/middleware"
	"github.com/updrift/updrift/internal/domain/catalog"
	"github.com/updrift/updrift/internal/domain/registry"
	"github.com/updrift/updrift/internal/domain/resolver"
	"github.com/updrift/updrift/internal/domain/streamer"
	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/shared/types"
	"github.com/updrift/updrift/internal/storage"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	registry *registry.Manager
	catalog  *catalog.Manager
	resolver *resolver.Resolver
	streamer *streamer.Streamer
	store    *storage.Store
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	reg *registry.Manager,
	cat *catalog.Manager,
	res *resolver.Resolver,
	str *streamer.Streamer,
	store *storage.Store,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		registry: reg,
		catalog:  cat,
		resolver: res,
		streamer: str,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "updrift",
		"version": "0.3.0",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	usage, err := h.store.Usage()
	if err != nil {
		h.logger.Warn("store usage scan failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"registry": h.registry.Stats(),
		"catalog":  h.catalog.Stats(),
		"storage":  usage,
	})
}

type registerAppRequest struct {
	AppID       string `json:"app_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Publisher   string `json:"publisher"`
}

// RegisterApp upserts an application.
func (h *Handlers) RegisterApp(c *gin.Context) {
	var req registerAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.registry.RegisterApp(c.Request.Context(), types.AppInfo{
		AppID:       req.AppID,
		Name:        req.Name,
		Description: req.Description,
		Publisher:   req.Publisher,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"app_id": req.AppID})
}

// ListApps lists all registered applications.
func (h *Handlers) ListApps(c *gin.Context) {
	apps := h.registry.GetAllApps(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

// ListVersions lists an app's versions in publish order.
func (h *Handlers) ListVersions(c *gin.Context) {
	versions, err := h.registry.GetAppVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// PublishVersion publishes a new release from a multipart form: a "version"
// field ("major.minor.build"), optional "version_id" and "release_notes"
// fields, and the artifact in the "package" file part.
func (h *Handlers) PublishVersion(c *gin.Context) {
	version, err := types.ParseVersion(c.PostForm("version"))
	if err != nil {
		h.fail(c, err)
		return
	}

	file, err := c.FormFile("package")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: package file part is required", types.ErrInvalidArgument))
		return
	}
	src, err := file.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("%w: unreadable package upload", types.ErrInvalidArgument))
		return
	}
	defer src.Close()

	info := types.VersionInfo{
		VersionID:    c.PostForm("version_id"),
		AppID:        c.Param("id"),
		Version:      version,
		ReleaseNotes: c.PostForm("release_notes"),
	}
	published, pkg, err := h.registry.PublishVersion(c.Request.Context(), info, src)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": published, "package": pkg})
}

// PublishIncremental publishes a patch between two existing versions.
func (h *Handlers) PublishIncremental(c *gin.Context) {
	sourceID := c.PostForm("source_version_id")
	targetID := c.PostForm("target_version_id")
	if sourceID == "" || targetID == "" {
		h.fail(c, fmt.Errorf("%w: source_version_id and target_version_id are required", types.ErrInvalidArgument))
		return
	}

	file, err := c.FormFile("package")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: package file part is required", types.ErrInvalidArgument))
		return
	}
	src, err := file.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("%w: unreadable package upload", types.ErrInvalidArgument))
		return
	}
	defer src.Close()

	pkg, err := h.catalog.PublishIncremental(c.Request.Context(), c.Param("id"), sourceID, targetID, src)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg})
}

// CheckUpdate resolves an update request (fresh check or resume).
func (h *Handlers) CheckUpdate(c *gin.Context) {
	var req types.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.resolver.CheckUpdate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetPackage returns one package record.
func (h *Handlers) GetPackage(c *gin.Context) {
	pkg, err := h.catalog.FindPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg})
}

// DownloadPackage streams package bytes with HTTP range semantics. Clients
// resume by sending "Range: bytes=<offset>-" at the offset confirmed by a
// resume check.
func (h *Handlers) DownloadPackage(c *gin.Context) {
	start, length, ranged, err := parseRangeHeader(c.GetHeader("Range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rng, err := h.streamer.OpenRange(c.Request.Context(), c.Param("id"), start, length)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rng.Reader.Close()

	c.Header("Accept-Ranges", "bytes")

	// A range starting exactly at end of file is a valid empty read for the
	// streamer but has no representable byte-range spec; RFC 9110 wants 416
	// with the unsatisfied-range form.
	if ranged && rng.Length == 0 {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", rng.TotalSize))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	c.Header("Content-Length", strconv.FormatInt(rng.Length, 10))
	c.Header("X-Checksum-Sha256", rng.Package.Checksum)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(rng.Package.Path)))
	contentType := rng.Package.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)

	status := http.StatusOK
	if ranged {
		status = http.StatusPartialContent
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.Start+rng.Length-1, rng.TotalSize))
	}
	c.Status(status)

	// A client disconnect surfaces as a write error and ends the copy; no
	// shared state is touched mid-stream.
	n, err := io.Copy(c.Writer, rng.Reader)
	if h.metrics != nil {
		h.metrics.AddBytesStreamed(n)
	}
	if err != nil {
		h.logger.Debug("package stream ended early",
			zap.String("package_id", rng.Package.PackageID),
			zap.Int64("sent", n),
			zap.Error(err),
		)
	}
}

// fail maps engine errors onto HTTP status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrAppNotRegistered),
		errors.Is(err, types.ErrVersionNotFound),
		errors.Is(err, types.ErrPackageNotFound),
		errors.Is(err, types.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrOffsetOutOfRange):
		status = http.StatusRequestedRangeNotSatisfiable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseRangeHeader parses "bytes=start-" and "bytes=start-end" forms.
// Suffix ranges ("bytes=-n") are not used by resume clients and are
// rejected. An absent header means the whole file.
func parseRangeHeader(header string) (start, length int64, ranged bool, err error) {
	if header == "" {
		return 0, 0, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false, fmt.Errorf("unsupported range %q", header)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok || first == "" {
		return 0, 0, false, fmt.Errorf("unsupported range %q", header)
	}
	start, err = strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, fmt.Errorf("invalid range start %q", header)
	}
	if last = strings.TrimSpace(last); last != "" {
		end, err := strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return 0, 0, false, fmt.Errorf("invalid range end %q", header)
		}
		length = end - start + 1
	}
	return start, length, true, nil
}
