package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// VersionHandler reports the build and the schema the data directory is at.
type VersionHandler struct {
	Version       string
	TargetSchema  int
	StoredVersion func() (int, error)
}

func (h *VersionHandler) Check(c *gin.Context) {
	resp := gin.H{
		"version":        h.Version,
		"target_schema":  h.TargetSchema,
		"schema_current": false,
	}
	if h.StoredVersion != nil {
		stored, err := h.StoredVersion()
		if err != nil {
			log.WithField("component", "version").WithError(err).Warn("reading schema version")
		} else {
			resp["schema_version"] = stored
			resp["schema_current"] = stored >= h.TargetSchema
		}
	}
	c.JSON(http.StatusOK, resp)
}
