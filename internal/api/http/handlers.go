package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/appletsync/internal/generator"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/store"
)

// Handlers serves the applet protocol
type Handlers struct {
	store     *store.Store
	generator generator.Generator
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	started   time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(st *store.Store, gen generator.Generator, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:     st,
		generator: gen,
		metrics:   metrics,
		logger:    logger,
		started:   time.Now(),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/applet", h.CreateApplet)
	r.GET("/applet/:id", h.ShowApplet)
	r.POST("/applet/:id", h.ChangeApplet)

	r.GET("/applet/:id/html", h.AppletHTML)
	r.HEAD("/applet/:id/html", h.AppletHTML)

	r.GET("/applet/:id/storage", h.AppletStorage)
	r.HEAD("/applet/:id/storage", h.AppletStorage)
	r.PUT("/applet/:id/storage", h.UpdateStorage)
	r.DELETE("/applet/:id/storage", h.DeleteStorage)
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Applet Sync Server",
		"version": "0.1.0",
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"store":  h.store.Root(),
		"uptime": time.Since(h.started).String(),
	}
	if h.metrics != nil {
		body["requests"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ShowApplet describes an applet and the requests that shaped it
func (h *Handlers) ShowApplet(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}
	if !h.store.Exists(applet) {
		notFound(c, "Applet not found")
		return
	}

	prompts, err := h.store.Prompts(applet)
	if err != nil {
		h.logger.Error("Failed to read prompts", zap.String("applet", applet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uuid":    applet.String(),
		"prompts": prompts,
	})
}

// AppletHTML serves the current document. HEAD answers with the marker only.
func (h *Handlers) AppletHTML(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}

	res, err := h.store.Content(applet)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c, "HTML file not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read html", zap.String("applet", applet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read html"})
		return
	}

	setLastModified(c, res.Modified)
	c.Data(http.StatusOK, "text/html; charset=utf-8", res.Data)
}

// AppletStorage serves the storage snapshot. A missing or unreadable
// snapshot is served as {} without a marker.
func (h *Handlers) AppletStorage(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}

	res, err := h.store.Storage(applet)
	if err != nil {
		h.logger.Error("Failed to read storage", zap.String("applet", applet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read storage"})
		return
	}

	setLastModified(c, res.Modified)
	c.Data(http.StatusOK, "application/json", res.Data)
}

// UpdateStorage replaces the snapshot with the JSON request body
func (h *Handlers) UpdateStorage(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}
	if !h.store.Exists(applet) {
		notFound(c, "Applet not found")
		return
	}
	if c.ContentType() != gin.MIMEJSON {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request must be JSON"})
		return
	}

	body, err := readLimited(c.Request.Body, store.MaxStorageBytes)
	if errors.Is(err, errTooLarge) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Storage data too large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	switch err := h.store.PutStorage(applet, body); {
	case err == nil:
	case errors.Is(err, store.ErrInvalidJSON):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	case errors.Is(err, store.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Storage data too large"})
		return
	case errors.Is(err, store.ErrNotFound):
		notFound(c, "Applet not found")
		return
	default:
		h.logger.Error("Failed to update storage", zap.String("applet", applet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update storage"})
		return
	}

	if h.metrics != nil {
		h.metrics.StorageWrites.Inc()
	}
	h.logger.Debug("Storage updated", zap.String("applet", applet.String()), zap.Int("bytes", len(body)))
	c.JSON(http.StatusOK, gin.H{"message": "Storage updated successfully"})
}

// DeleteStorage empties the snapshot
func (h *Handlers) DeleteStorage(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}

	err := h.store.ClearStorage(applet)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c, "Storage file not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to empty storage", zap.String("applet", applet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to empty storage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Storage emptied successfully"})
}

// appletParam parses the :id parameter. Malformed ids answer 404 like
// unknown ones.
func appletParam(c *gin.Context) (uuid.UUID, bool) {
	applet, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFound(c, "Applet not found")
		return uuid.Nil, false
	}
	return applet, true
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"error": msg})
}

func setLastModified(c *gin.Context, modified time.Time) {
	if modified.IsZero() {
		return
	}
	c.Header("Last-Modified", modified.UTC().Format(http.TimeFormat))
}
