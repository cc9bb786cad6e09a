package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/BinLe1988/moderation-gateway/pkg/moderation"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxRequestBytes caps inbound request bodies.
const maxRequestBytes = 1 << 20

// Moderator is the moderation service as seen by the handlers.
type Moderator interface {
	Ready() error
	MaxBatchSize() int
	Moderate(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error)
	ModerateBatch(ctx context.Context, reqs []models.ModerationRequest) ([]models.ModerationResult, error)
}

// ModerationHandler serves the /moderate endpoints.
type ModerationHandler struct {
	svc Moderator
	log *zap.Logger
}

func NewModerationHandler(svc Moderator, log *zap.Logger) *ModerationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModerationHandler{svc: svc, log: log}
}

// RegisterRoutes mounts the moderation endpoints.
func (h *ModerationHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/moderate")
	{
		group.POST("", h.Moderate)
		group.POST("/plain", h.ModeratePlain)
		group.POST("/batch", h.ModerateBatch)
	}
}

// Moderate handles a structured JSON request.
func (h *ModerationHandler) Moderate(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	req, err := moderation.NormalizeStructured(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.moderateOne(c, req)
}

// ModeratePlain takes the raw body as text, or the "text" field of a
// submitted form.
func (h *ModerationHandler) ModeratePlain(c *gin.Context) {
	var (
		req models.ModerationRequest
		err error
	)

	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
		req, err = moderation.NormalizeForm(c.PostForm("text"))
	} else {
		var body []byte
		body, err = readBody(c)
		if err == nil {
			req, err = moderation.NormalizePlain(body)
		}
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.moderateOne(c, req)
}

// ModerateBatch moderates every input independently. The response is 200 as
// long as the request itself was valid; per-item failures are in the results.
func (h *ModerationHandler) ModerateBatch(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	reqs, err := moderation.NormalizeBatch(body, h.svc.MaxBatchSize())
	if err != nil {
		h.writeError(c, err)
		return
	}

	results, err := h.svc.ModerateBatch(c.Request.Context(), reqs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewBatchResponse(results))
}

func (h *ModerationHandler) moderateOne(c *gin.Context, req models.ModerationRequest) {
	result, err := h.svc.Moderate(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ModerationHandler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	e := moderation.AsError(err)
	if e.Kind == moderation.KindInternal {
		h.log.Error("unexpected failure", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(StatusFor(e), models.ErrorResponse{Error: *e.Info()})
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, moderation.ValidationError("body", "must not exceed %d bytes", maxRequestBytes)
		}
		return nil, moderation.CanceledError(errors.Wrap(err, "failed to read request body"))
	}
	return body, nil
}
