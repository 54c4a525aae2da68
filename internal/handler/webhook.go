package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v68/github"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/metrics"
)

// Deployer redeploys the server and returns the deploy output.
type Deployer interface {
	Deploy(ctx context.Context) (string, error)
}

// WebhookHandler receives GitHub deliveries on /git.
type WebhookHandler struct {
	Secret   string
	Deployer Deployer
	Metrics  *metrics.Metrics

	log *log.Entry
}

func NewWebhookHandler(secret string, d Deployer, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Deployer: d, Metrics: m, log: log.WithField("component", "webhook")}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	// go-github skips verification for an empty secret, so refuse outright.
	if h.Secret == "" {
		h.log.Warn("webhook secret not configured, rejecting delivery")
		c.String(http.StatusForbidden, "auth failed")
		return
	}
	payload, err := github.ValidatePayload(c.Request, []byte(h.Secret))
	if err != nil {
		h.log.WithError(err).Warn("webhook signature rejected")
		c.String(http.StatusForbidden, "auth failed")
		return
	}

	eventType := github.WebHookType(c.Request)
	logger := h.log.WithFields(log.Fields{
		"event":    eventType,
		"delivery": github.DeliveryID(c.Request),
	})

	switch eventType {
	case "push":
		if event, err := github.ParseWebHook(eventType, payload); err == nil {
			if push, ok := event.(*github.PushEvent); ok {
				logger = logger.WithFields(log.Fields{
					"repo": push.GetRepo().GetFullName(),
					"ref":  push.GetRef(),
					"head": push.GetHeadCommit().GetID(),
				})
			}
		}
		logger.Info("push received, deploying")
		h.deploy(c, logger)
	case "ping":
		logger.Info("webhook ping")
		c.String(http.StatusOK, "PONG")
	default:
		logger.Info("ignoring webhook event")
		c.String(http.StatusOK, "Unsupported Github event. Nothing done.")
	}
}

func (h *WebhookHandler) deploy(c *gin.Context, logger *log.Entry) {
	if h.Deployer == nil {
		c.String(http.StatusServiceUnavailable, "deploy not configured")
		return
	}
	// GitHub gives up on slow deliveries; the deploy must outlive that.
	output, err := h.Deployer.Deploy(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		logger.WithError(err).Error("deploy failed")
		if h.Metrics != nil {
			h.Metrics.Deploys.WithLabelValues("failure").Inc()
		}
		c.String(http.StatusInternalServerError, "deploy failed")
		return
	}
	if h.Metrics != nil {
		h.Metrics.Deploys.WithLabelValues("success").Inc()
	}
	c.String(http.StatusOK, output)
}
