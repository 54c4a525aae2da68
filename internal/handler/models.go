package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/metrics"
	"fitsbook-server/internal/model"
	"fitsbook-server/internal/store"
)

// Notifier fans out model changes to live viewers.
type Notifier interface {
	ModelCreated(id int64)
	HistoryAppended(id int64, event json.RawMessage)
	TrainingEnded(id int64, stopped bool)
}

type nopNotifier struct{}

func (nopNotifier) ModelCreated(int64)                      {}
func (nopNotifier) HistoryAppended(int64, json.RawMessage) {}
func (nopNotifier) TrainingEnded(int64, bool)               {}

// ModelHandler serves the model, training and history routes.
type ModelHandler struct {
	Models   *store.ModelStore
	Notifier Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time

	log *log.Entry
}

func NewModelHandler(models *store.ModelStore, notifier Notifier, m *metrics.Metrics) *ModelHandler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ModelHandler{
		Models:   models,
		Notifier: notifier,
		Metrics:  m,
		Now:      time.Now,
		log:      log.WithField("component", "models"),
	}
}

type createModelBody struct {
	Model       *model.NamedConfig `json:"model"`
	Optimizer   *model.NamedConfig `json:"optimizer"`
	Description *string            `json:"description"`
}

func (h *ModelHandler) Create(c *gin.Context) {
	var body createModelBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	if body.Model == nil || body.Optimizer == nil {
		badRequest(c, "model and optimizer are required")
		return
	}

	rec := model.ModelRecord{
		Model:         *body.Model,
		Optimizer:     *body.Optimizer,
		TrainingStart: h.Now().UnixMilli(),
		Description:   body.Description,
		History:       []json.RawMessage{},
	}
	id, err := h.Models.Insert(c.Request.Context(), rec)
	if err != nil {
		storeFailure(c, h.log, "create", err)
		return
	}

	h.log.WithFields(log.Fields{"id": id, "model": rec.Model.Name}).Info("model created")
	if h.Metrics != nil {
		h.Metrics.ModelsCreated.Inc()
	}
	h.Notifier.ModelCreated(id)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *ModelHandler) Get(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	doc, err := h.Models.GetJSON(c.Request.Context(), id)
	if err != nil {
		storeFailure(c, h.log, "get", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

func (h *ModelHandler) List(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	docs, err := h.Models.ListJSON(c.Request.Context(), limit, offset)
	if err != nil {
		storeFailure(c, h.log, "list", err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *ModelHandler) Delete(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	if err := h.Models.Delete(c.Request.Context(), id); err != nil {
		storeFailure(c, h.log, "delete", err)
		return
	}
	c.String(http.StatusOK, "OK")
}

type patchModelBody struct {
	Description *string `json:"description"`
}

// Patch updates the description, the only field clients may edit directly.
func (h *ModelHandler) Patch(c *gin.Context) {
	id, ok := modelID(c)
	if !ok {
		return
	}
	var body patchModelBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Description == nil {
		badRequest(c, "description is required")
		return
	}
	if err := h.Models.SetDescription(c.Request.Context(), id, *body.Description); err != nil {
		storeFailure(c, h.log, "patch", err)
		return
	}
	c.String(http.StatusOK, "OK")
}
