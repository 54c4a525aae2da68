package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *ModelHandler) EndTraining(c *gin.Context) {
	h.finish(c, false)
}

func (h *ModelHandler) StopTraining(c *gin.Context) {
	h.finish(c, true)
}

func (h *ModelHandler) finish(c *gin.Context, stop bool) {
	id, ok := modelID(c)
	if !ok {
		return
	}

	now := h.Now()
	var err error
	if stop {
		err = h.Models.StopTraining(c.Request.Context(), id, now)
	} else {
		err = h.Models.EndTraining(c.Request.Context(), id, now)
	}
	if err != nil {
		storeFailure(c, h.log, "finish training", err)
		return
	}

	h.log.WithField("id", id).WithField("stopped", stop).Info("training ended")
	if h.Metrics != nil {
		h.Metrics.TrainingEnded.WithLabelValues(strconv.FormatBool(stop)).Inc()
	}
	h.Notifier.TrainingEnded(id, stop)
	c.String(http.StatusOK, "OK")
}

// StopFlag is polled by training jobs to learn whether they should quit.
func (h *ModelHandler) StopFlag(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	stop, err := h.Models.StopSignal(c.Request.Context(), id)
	if err != nil {
		storeFailure(c, h.log, "stop flag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stop": stop})
}
