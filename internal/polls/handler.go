package polls

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/pkg/response"
)

// Handler exposes the read-only HTTP surface over the manager: the current
// poll and the closed-poll history. Both are thin pass-throughs with no
// coordination logic.
type Handler struct {
	manager      *Manager
	historyLimit int
}

// NewHandler creates a polls handler. historyLimit caps /polls/history when
// the caller does not pass a limit.
func NewHandler(manager *Manager, historyLimit int) *Handler {
	return &Handler{manager: manager, historyLimit: historyLimit}
}

// Current handles GET /polls/current. Responds with the active poll
// snapshot or null.
func (h *Handler) Current(c *gin.Context) {
	snap, err := h.manager.Active(c.Request.Context())
	if err != nil {
		response.FromAppError(c, err)
		return
	}
	response.OK(c, snap)
}

// History handles GET /polls/history?limit=N. Responds with closed polls
// most-recent-first, each with its tallied options.
func (h *Handler) History(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		if n > 0 {
			limit = n
		}
	}

	snaps, err := h.manager.History(c.Request.Context(), limit)
	if err != nil {
		response.FromAppError(c, err)
		return
	}
	response.OK(c, snaps)
}
