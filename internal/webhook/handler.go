package webhook

import (
	"net/http"

	"regvil_tracker_backend/platform/httpkit"
	"regvil_tracker_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Handler handles inbound cloud events from the events platform.
type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the webhook endpoints.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/httppost", h.HandleEvent)
}

// HandleEvent processes one cloud event.
// POST /httppost
func (h *Handler) HandleEvent(c *gin.Context) {
	var ev InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid event payload", err.Error())
		return
	}

	// The subscription validation handshake and any event type we do not
	// track are acknowledged without side effects.
	if ev.Type != EventProcessCompleted {
		h.log.Info("ignoring event", "type", ev.Type)
		c.Status(http.StatusNoContent)
		return
	}

	ref, err := ParseSource(ev.Source)
	if httpkit.HandleError(c, err) {
		return
	}

	resp, err := h.service.HandleCompletion(c.Request.Context(), ref)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}
