package controller

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CreditController struct {
	CreditService *service.CreditService
	Packages      *service.CreditPackages
}

func NewCreditController(creditService *service.CreditService, packages *service.CreditPackages) *CreditController {
	return &CreditController{
		CreditService: creditService,
		Packages:      packages,
	}
}

// swagger:model GrantCreditsRequest
type GrantCreditsRequest struct {
	UserID      string `json:"userId" binding:"required"`
	Amount      int    `json:"amount" binding:"required,gt=0"`
	Type        string `json:"type" binding:"required,oneof=promotion test"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

// GetBalance godoc
// @Summary Current credit balance
// @Tags Credits
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object}
// @Router /api/credits/balance [get]
func (c *CreditController) GetBalance(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	balance, err := c.CreditService.GetBalance(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"balance": balance})
}

// ListTransactions godoc
// @Summary Credit ledger entries, newest first
// @Tags Credits
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "Page" default(1)
// @Param   limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/credits/transactions [get]
func (c *CreditController) ListTransactions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page := util.ParsePositiveInt(ctx.Query("page"), 1)
	limit := util.ParsePositiveInt(ctx.Query("limit"), 20)

	result, err := c.CreditService.ListTransactions(ctx.Request.Context(), claims.UserID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListPackages godoc
// @Summary Purchasable credit packages
// @Tags Credits
// @Produce  json
// @Success 200 {object} util.Response{data=[]config.CreditPackage}
// @Router /api/credits/packages [get]
func (c *CreditController) ListPackages(ctx *gin.Context) {
	util.Success(ctx, c.Packages.List())
}

// Audit godoc
// @Summary Compare a user's balance with the ledger sum
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param   userId path string true "User ID"
// @Success 200 {object} util.Response{data=service.CreditAudit}
// @Router /api/admin/credits/{userId}/audit [get]
func (c *CreditController) Audit(ctx *gin.Context) {
	audit, err := c.CreditService.Audit(ctx.Request.Context(), ctx.Param("userId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, audit)
}

// Grant godoc
// @Summary Grant promotion or test credits
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body GrantCreditsRequest true "Grant"
// @Success 201 {object} util.Response{data=model.CreditTransaction}
// @Failure 409 {object} util.Response "Reference already used"
// @Router /api/admin/credits/grant [post]
func (c *CreditController) Grant(ctx *gin.Context) {
	var req GrantCreditsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	admin := util.GetUserFromContext(ctx)
	txn, err := c.CreditService.AddCredits(ctx.Request.Context(), service.CreditEntry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        model.TransactionType(req.Type),
		Description: req.Description,
		Metadata:    map[string]interface{}{"grantedBy": admin.UserID},
		Reference:   req.Reference,
	})
	if service.IsDuplicate(err) {
		util.Error(ctx, 409, err.Error())
		return
	}
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, txn)
}
