package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/pipeline"
	"plate-gate/internal/service"
)

type Handler struct {
	gateService *service.GateService
	log         zerolog.Logger
}

func NewHandler(gateService *service.GateService, log zerolog.Logger) *Handler {
	return &Handler{
		gateService: gateService,
		log:         log,
	}
}

// NewRouter builds the gin engine with CORS and all routes registered.
func NewRouter(h *Handler, corsOrigins []string, authMiddleware gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(corsOrigins) == 0 || (len(corsOrigins) == 1 && corsOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = corsOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	h.Register(r, authMiddleware)
	return r
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	public := r.Group("/api/v1")
	{
		public.POST("/detections", h.createDetection)
		public.GET("/decisions", h.listDecisions)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/rules/reload", h.reloadRules)
		protected.POST("/lists/:type/plates", h.addListPlate)
		protected.POST("/gate/open", h.openGate)
		protected.POST("/gate/close", h.closeGate)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rules":  h.gateService.RuleSizes(),
	})
}

func (h *Handler) createDetection(c *gin.Context) {
	var payload anpr.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	decision, err := h.gateService.ProcessIncomingEvent(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(decision))
}

func (h *Handler) listDecisions(c *gin.Context) {
	plateQuery := optionalQuery(c, "plate")
	categoryQuery := optionalQuery(c, "category")
	from := optionalQuery(c, "from")
	to := optionalQuery(c, "to")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	decisions, err := h.gateService.FindDecisions(c.Request.Context(), plateQuery, categoryQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(decisions))
}

func (h *Handler) reloadRules(c *gin.Context) {
	sizes, err := h.gateService.ReloadRules(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.log.Info().Str("subject", subject(c)).Msg("rules reloaded via api")
	c.JSON(http.StatusOK, successResponse(sizes))
}

type listPlateRequest struct {
	Plate string `json:"plate" binding:"required"`
	Group string `json:"group"`
	Note  string `json:"note"`
}

func (h *Handler) addListPlate(c *gin.Context) {
	var req listPlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	sizes, err := h.gateService.AddListEntry(c.Request.Context(), c.Param("type"), req.Plate, req.Group, req.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(sizes))
}

type gateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) openGate(c *gin.Context) {
	h.driveGate(c, h.gateService.OpenGate, "opened")
}

func (h *Handler) closeGate(c *gin.Context) {
	h.driveGate(c, h.gateService.CloseGate, "closed")
}

func (h *Handler) driveGate(c *gin.Context, drive func(ctx context.Context, reason string) error, state string) {
	var req gateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = subject(c)
	}

	if err := drive(c.Request.Context(), req.Reason); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"gate": state}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	case errors.Is(err, service.ErrDatabaseDisabled):
		c.JSON(http.StatusNotImplemented, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
