package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Ping answers with the server's current UTC time.
func Ping(c *gin.Context) {
	c.String(http.StatusOK, "PONG [%s]", time.Now().UTC().Format(http.TimeFormat))
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
