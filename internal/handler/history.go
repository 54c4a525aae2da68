package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AppendHistory stores the request body verbatim as the next history event
// and relays it to viewers on history-<id>.
func (h *ModelHandler) AppendHistory(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		badRequest(c, "Invalid JSON")
		return
	}
	event := json.RawMessage(body)

	if err := h.Models.AppendHistory(c.Request.Context(), id, event); err != nil {
		storeFailure(c, h.log, "append history", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.HistoryEvents.Inc()
	}
	h.Notifier.HistoryAppended(id, event)
	c.String(http.StatusOK, "OK")
}

func (h *ModelHandler) History(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	history, err := h.Models.History(c.Request.Context(), id)
	if err != nil {
		storeFailure(c, h.log, "history", err)
		return
	}
	c.JSON(http.StatusOK, history)
}
