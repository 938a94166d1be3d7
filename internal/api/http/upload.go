package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/appletsync/internal/generator"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/store"
)

// Accepted recording types
var allowedAudio = map[string]bool{
	"audio/webm": true,
	"audio/ogg":  true,
	"audio/wav":  true,
	"audio/mpeg": true,
	"audio/mp3":  true,
}

var (
	errTooLarge     = errors.New("payload too large")
	ErrInvalidAudio = errors.New("invalid audio file type")
)

// recording is a validated audio upload
type recording struct {
	data        []byte
	filename    string
	contentType string
	ext         string
}

// CreateApplet generates a new applet from a recorded description
func (h *Handlers) CreateApplet(c *gin.Context) {
	rec, ok := h.readRecording(c)
	if !ok {
		return
	}

	applet, err := h.store.Create()
	if err != nil {
		h.logger.Error("Failed to create applet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process audio"})
		return
	}

	name, err := h.process(c.Request.Context(), applet, "initial", rec, generator.Request{})
	if err != nil {
		h.uploadFailed(applet, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process audio"})
		return
	}

	if h.metrics != nil {
		h.metrics.AppletsCreated.Inc()
		h.metrics.RecordUpload(monitoring.ResultSuccess)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Audio file uploaded and processed successfully",
		"uuid":      applet.String(),
		"file_name": name,
	})
}

// ChangeApplet regenerates an applet from a recorded change request
func (h *Handlers) ChangeApplet(c *gin.Context) {
	applet, ok := appletParam(c)
	if !ok {
		return
	}
	if !h.store.Exists(applet) {
		notFound(c, "Applet not found")
		return
	}

	rec, ok := h.readRecording(c)
	if !ok {
		return
	}

	current, err := h.store.Content(applet)
	if errors.Is(err, store.ErrNotFound) {
		notFound(c, "Current index.html not found")
		return
	}
	if err != nil {
		h.uploadFailed(applet, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change applet"})
		return
	}
	storage, err := h.store.Storage(applet)
	if err != nil {
		h.uploadFailed(applet, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change applet"})
		return
	}

	name, err := h.process(c.Request.Context(), applet, "change", rec, generator.Request{
		CurrentHTML:    string(current.Data),
		CurrentStorage: string(storage.Data),
	})
	if err != nil {
		h.uploadFailed(applet, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change applet"})
		return
	}

	if h.metrics != nil {
		h.metrics.AppletsReplaced.Inc()
		h.metrics.RecordUpload(monitoring.ResultSuccess)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Applet changed successfully",
		"uuid":      applet.String(),
		"file_name": name,
	})
}

// process stores the recording, runs the generator and persists the result.
// It returns the stored recording's file name.
func (h *Handlers) process(ctx context.Context, applet uuid.UUID, kind string, rec *recording, req generator.Request) (string, error) {
	name, err := h.store.SaveAudio(applet, kind, rec.ext, bytes.NewReader(rec.data))
	if err != nil {
		return "", err
	}

	req.Audio = rec.data
	req.Filename = rec.filename
	req.ContentType = rec.contentType

	res, err := h.generator.Generate(ctx, req)
	if res != nil && res.Transcription != "" {
		if serr := h.store.SaveTranscription(applet, name, res.Transcription); serr != nil {
			h.logger.Warn("Failed to save transcription", zap.String("applet", applet.String()), zap.Error(serr))
		}
	}
	if err != nil {
		return "", err
	}

	if res.HTML != "" {
		if _, err := h.store.SaveContent(applet, res.HTML); err != nil {
			return "", err
		}
	} else if !req.IsChange() {
		return "", generator.ErrEmptyCompletion
	}

	if res.Storage != "" {
		if err := h.store.PutStorage(applet, []byte(res.Storage)); err != nil {
			h.logger.Warn("Generated storage rejected", zap.String("applet", applet.String()), zap.Error(err))
		}
	}
	return name, nil
}

// readRecording extracts and validates the "audio" form file
func (h *Handlers) readRecording(c *gin.Context) (*recording, bool) {
	header, err := c.FormFile("audio")
	if err != nil {
		h.rejectUpload(c, "No audio file provided")
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		h.rejectUpload(c, "No audio file provided")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.rejectUpload(c, "No audio file provided")
		return nil, false
	}

	contentType, err := audioType(header.Header.Get("Content-Type"), data)
	if err != nil {
		h.rejectUpload(c, "Invalid audio file type")
		return nil, false
	}

	ext := ".webm"
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return &recording{
		data:        data,
		filename:    header.Filename,
		contentType: contentType,
		ext:         ext,
	}, true
}

func (h *Handlers) rejectUpload(c *gin.Context, msg string) {
	if h.metrics != nil {
		h.metrics.RecordUpload("rejected")
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *Handlers) uploadFailed(applet uuid.UUID, err error) {
	if h.metrics != nil {
		h.metrics.RecordUpload(monitoring.ResultFailure)
	}
	h.logger.Error("Error processing audio", zap.String("applet", applet.String()), zap.Error(err))
}

// audioType resolves the recording's media type. The declared part type is
// used when present; otherwise the payload is sniffed.
func audioType(declared string, data []byte) (string, error) {
	base, _, _ := strings.Cut(declared, ";")
	base = strings.ToLower(strings.TrimSpace(base))

	if base == "" || base == "application/octet-stream" {
		detected := mimetype.Detect(data)
		base = detected.String()
		for m := detected; m != nil; m = m.Parent() {
			if allowedAudio[m.String()] {
				base = m.String()
				break
			}
		}
		if strings.HasPrefix(base, "video/webm") {
			base = "audio/webm"
		}
	}

	if !allowedAudio[base] {
		return "", ErrInvalidAudio
	}
	return base, nil
}

// readLimited reads at most limit bytes, reporting errTooLarge beyond that
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}
