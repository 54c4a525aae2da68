package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/metrics"
	"fitsbook-server/internal/store"
)

// TokenHandler exchanges a username and password for a bearer token.
type TokenHandler struct {
	Auth    *store.AuthStore
	Metrics *metrics.Metrics

	log *log.Entry
}

func NewTokenHandler(auth *store.AuthStore, m *metrics.Metrics) *TokenHandler {
	return &TokenHandler{Auth: auth, Metrics: m, log: log.WithField("component", "auth")}
}

type tokenRequestBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Issue never reveals why a login failed: unknown users and wrong
// passwords both get {success:false}.
func (h *TokenHandler) Issue(c *gin.Context) {
	var body tokenRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	ctx := c.Request.Context()
	userID, err := h.Auth.Authenticate(ctx, body.Username, body.Password)
	if err != nil {
		if !errors.Is(err, store.ErrAuthFailed) {
			h.log.WithError(err).Error("authentication lookup failed")
		}
		if h.Metrics != nil {
			h.Metrics.LoginFailures.Inc()
		}
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	tok, err := h.Auth.IssueToken(ctx, userID)
	if err != nil {
		h.log.WithError(err).WithField("userid", userID).Error("issuing token failed")
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	if h.Metrics != nil {
		h.Metrics.TokensIssued.Inc()
	}
	h.log.WithField("userid", userID).Info("token issued")

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"token":       tok.Token,
		"userid":      tok.UserID,
		"created_at":  tok.CreatedAt,
		"valid_until": tok.ValidUntil,
	})
}
