package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/store"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// storeFailure maps a store error onto the public error payloads. Anything
// other than a missing model or a broken history is logged and hidden
// behind a generic 500.
func storeFailure(c *gin.Context, logger *log.Entry, op string, err error) {
	if store.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return
	}
	if errors.Is(err, store.ErrNotArray) {
		c.JSON(http.StatusConflict, gin.H{"error": "History is not an array"})
		return
	}
	logger.WithError(err).WithField("op", op).Error("store failure")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

func modelID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid model id")
		return 0, false
	}
	return id, true
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(c, "Invalid "+key)
		return 0, false
	}
	return v, true
}
