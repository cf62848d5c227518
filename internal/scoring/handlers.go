package scoring

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/inference"
	"github.com/mbd888/fraudscore/internal/logging"
	"github.com/mbd888/fraudscore/internal/metrics"
	"github.com/mbd888/fraudscore/internal/model"
)

// Failure messages returned alongside the error detail.
var failureMessages = map[string]string{
	inference.LocaleTR: "Veri işlenirken hata oluştu.",
	inference.LocaleEN: "An error occurred while processing the data.",
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// ModelInfo is the body of GET /v1/model.
type ModelInfo struct {
	model.Info
	Encoders     map[string]int       `json:"encoders"`
	Thresholds   inference.Thresholds `json:"thresholds"`
	FallbackCode float64              `json:"fallbackCode"`
	Locale       string               `json:"locale"`
	RiskLabels   []string             `json:"riskLabels"` // low, medium, high
}

// Handler serves the scoring HTTP API.
type Handler struct {
	service *Service
	info    ModelInfo
	locale  string
	strict  bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithModelInfo sets the body of GET /v1/model.
func WithModelInfo(info ModelInfo) HandlerOption {
	return func(h *Handler) { h.info = info }
}

// WithLocale selects the failure message language.
func WithLocale(locale string) HandlerOption {
	return func(h *Handler) { h.locale = locale }
}

// WithStrictStatusCodes maps failures to 4xx/5xx instead of 200.
func WithStrictStatusCodes(strict bool) HandlerOption {
	return func(h *Handler) { h.strict = strict }
}

// NewHandler creates the scoring HTTP handler.
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, locale: inference.LocaleTR}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterLegacyRoutes mounts POST /predict at the router root.
func (h *Handler) RegisterLegacyRoutes(r gin.IRouter) {
	r.POST("/predict", h.Predict)
}

// RegisterRoutes mounts the versioned API.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/predict", h.Predict)
	r.GET("/model", h.GetModel)
	r.GET("/customers/:customerId/predictions", h.ListCustomerPredictions)
}

// Predict scores one JSON transaction record.
func (h *Handler) Predict(c *gin.Context) {
	ctx := c.Request.Context()

	rec, err := features.DecodeRecord(c.Request.Body)
	if err == nil {
		var res *Result
		res, err = h.service.Score(ctx, rec)
		if err == nil {
			c.JSON(http.StatusOK, res)
			return
		}
	} else {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request_too_large",
				"message": "Request body exceeds the size limit",
			})
			return
		}
		err = classify(err)
		metrics.PredictionErrorsTotal.WithLabelValues(string(KindOf(err))).Inc()
	}

	kind := KindOf(err)
	logging.L(ctx).Info("prediction failed", "kind", string(kind), "error", err)

	body := gin.H{
		"error":   err.Error(),
		"message": h.failureMessage(),
	}
	if !h.strict {
		c.JSON(http.StatusOK, body)
		return
	}
	body["kind"] = string(kind)
	c.JSON(statusFor(kind), body)
}

// GetModel describes the loaded model and scoring configuration.
func (h *Handler) GetModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

// ListCustomerPredictions returns a customer's recent scored transactions.
func (h *Handler) ListCustomerPredictions(c *gin.Context) {
	customerID := c.Param("customerId")

	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 1 and 100",
			})
			return
		}
		limit = parsed
	}

	txs, err := h.service.History(c.Request.Context(), customerID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list predictions", "customer_id", customerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list predictions",
		})
		return
	}
	if txs == nil {
		txs = []*ScoredTransaction{}
	}

	c.JSON(http.StatusOK, gin.H{
		"customerId":  customerID,
		"predictions": txs,
		"count":       len(txs),
	})
}

func (h *Handler) failureMessage() string {
	if m, ok := failureMessages[h.locale]; ok {
		return m
	}
	return failureMessages[inference.LocaleTR]
}

func statusFor(kind Kind) int {
	switch kind {
	case KindMalformedInput:
		return http.StatusBadRequest
	case KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
