package controller

import (
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stripe payloads are small; anything larger is not a webhook.
const maxWebhookBody = 65536

type CheckoutController struct {
	CheckoutService *service.CheckoutService
}

func NewCheckoutController(checkoutService *service.CheckoutService) *CheckoutController {
	return &CheckoutController{CheckoutService: checkoutService}
}

// swagger:model CheckoutRequest
type CheckoutRequest struct {
	PriceID      string `json:"priceId" binding:"required"`
	CreditAmount int    `json:"creditAmount" binding:"required,gt=0"`
}

// CreateCheckout godoc
// @Summary Create a payment session for a credit package
// @Tags Checkout
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CheckoutRequest true "Package"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "Unknown package"
// @Router /api/checkout/sessions [post]
func (c *CheckoutController) CreateCheckout(ctx *gin.Context) {
	var req CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	url, err := c.CheckoutService.CreateCheckout(ctx.Request.Context(), claims.UserID, claims.Email, req.PriceID, req.CreditAmount)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

// GetCheckoutStatus godoc
// @Summary Payment state of a checkout session
// @Tags Checkout
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "Checkout session ID"
// @Success 200 {object} util.Response{data=service.CheckoutStatus}
// @Router /api/checkout/sessions/{id} [get]
func (c *CheckoutController) GetCheckoutStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	status, err := c.CheckoutService.GetCheckoutStatus(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// Webhook godoc
// @Summary Payment provider webhook
// @Tags Checkout
// @Accept  json
// @Produce  json
// @Param   Stripe-Signature header string true "Payload signature"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response "Signature verification failed"
// @Router /api/webhooks/stripe [post]
func (c *CheckoutController) Webhook(ctx *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBody))
	if err != nil {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}

	if err := c.CheckoutService.HandleWebhook(ctx.Request.Context(), payload, ctx.GetHeader("Stripe-Signature")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"received": true})
}
