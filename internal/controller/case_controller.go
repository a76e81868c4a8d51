package controller

import (
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"
	"io"

	"github.com/gin-gonic/gin"
)

type CaseController struct {
	CaseService *service.CaseService
}

func NewCaseController(caseService *service.CaseService) *CaseController {
	return &CaseController{CaseService: caseService}
}

// ListCases godoc
// @Summary List business cases
// @Tags Cases
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.BusinessCase}
// @Router /api/cases [get]
func (c *CaseController) ListCases(ctx *gin.Context) {
	cases, err := c.CaseService.ListCases(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cases)
}

// GetCase godoc
// @Summary Get a case with its ordered sections
// @Tags Cases
// @Produce  json
// @Param   id path string true "Case ID"
// @Success 200 {object} util.Response{data=model.BusinessCase}
// @Failure 404 {object} util.Response "Case not found"
// @Router /api/cases/{id} [get]
func (c *CaseController) GetCase(ctx *gin.Context) {
	bc, err := c.CaseService.GetCase(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, bc)
}

// SeedCases godoc
// @Summary Upsert cases from a YAML catalogue
// @Tags Admin
// @Accept  application/x-yaml
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "Invalid catalogue"
// @Router /api/admin/cases/seed [post]
func (c *CaseController) SeedCases(ctx *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 4<<20))
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	n, err := c.CaseService.SeedBytes(ctx.Request.Context(), data)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"seeded": n})
}
