package controllers

import (
	"net/http"

	"product-importer/apperrors"
	"product-importer/models"
	"product-importer/services"

	"github.com/gin-gonic/gin"
)

type WebhookController struct {
	service   services.WebhookService
	validator *RequestValidator
}

func NewWebhookController(service services.WebhookService, validator *RequestValidator) *WebhookController {
	return &WebhookController{service: service, validator: validator}
}

// Events lists the event names a webhook may subscribe to.
func (wc *WebhookController) Events(c *gin.Context) {
	c.JSON(http.StatusOK, models.WebhookEvents)
}

func (wc *WebhookController) List(c *gin.Context) {
	hooks, err := wc.service.List(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, hooks)
}

func (wc *WebhookController) Get(c *gin.Context) {
	id, err := wc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	w, err := wc.service.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (wc *WebhookController) Create(c *gin.Context) {
	var req models.CreateWebhookRequest
	if err := wc.validator.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	w, err := wc.service.Create(c.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (wc *WebhookController) Update(c *gin.Context) {
	id, err := wc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	var req models.UpdateWebhookRequest
	if err := wc.validator.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}
	w, err := wc.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (wc *WebhookController) Delete(c *gin.Context) {
	id, err := wc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := wc.service.Delete(c.Request.Context(), id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted successfully", "success": true})
}

// Test performs a synchronous delivery and reports its outcome.
func (wc *WebhookController) Test(c *gin.Context) {
	id, err := wc.validator.ParseID(c, "id")
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	res, err := wc.service.Test(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
