package controller

import (
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type InterviewController struct {
	InterviewService *service.InterviewService
	ProgressService  *service.ProgressService
}

func NewInterviewController(interviewService *service.InterviewService, progressService *service.ProgressService) *InterviewController {
	return &InterviewController{
		InterviewService: interviewService,
		ProgressService:  progressService,
	}
}

// swagger:model FeedbackRequest
type FeedbackRequest struct {
	CaseID              string                   `json:"caseId"`
	SectionID           string                   `json:"sectionId"`
	ResponseText        string                   `json:"responseText"`
	SketchURL           string                   `json:"sketchUrl"`
	ConversationHistory []model.ConversationTurn `json:"conversationHistory"`
}

// Bootstrap godoc
// @Summary Initialise the account and grant the signup bonus once
// @Tags Progress
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.UserCaseProgress}
// @Router /api/progress/bootstrap [post]
func (c *InterviewController) Bootstrap(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	progress, err := c.ProgressService.EnsureBootstrap(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// ListProgress godoc
// @Summary Progress across started cases
// @Tags Progress
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.UserCaseProgress}
// @Router /api/progress [get]
func (c *InterviewController) ListProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	rows, err := c.ProgressService.ListProgress(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}

// GetProgress godoc
// @Summary Progress for one case
// @Tags Progress
// @Produce  json
// @Security BearerAuth
// @Param   caseId path string true "Case ID"
// @Success 200 {object} util.Response{data=model.UserCaseProgress}
// @Failure 409 {object} util.Response "Case not started"
// @Router /api/progress/{caseId} [get]
func (c *InterviewController) GetProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	progress, err := c.ProgressService.GetProgress(ctx.Request.Context(), claims.UserID, ctx.Param("caseId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// StartCase godoc
// @Summary Start (or resume) a case, charging one case cost for a new start
// @Tags Cases
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "Case ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 402 {object} util.Response "Insufficient credits"
// @Failure 404 {object} util.Response "Case not found"
// @Router /api/cases/{id}/start [post]
func (c *InterviewController) StartCase(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	result, err := c.InterviewService.StartCase(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// SubmitFeedback godoc
// @Summary Submit a section answer and receive interviewer feedback
// @Tags Cases
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body FeedbackRequest true "Answer"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response "Missing fields"
// @Failure 409 {object} util.Response "Case not started or section locked"
// @Failure 500 {object} util.Response "Submission not stored"
// @Router /api/case-feedback [post]
func (c *InterviewController) SubmitFeedback(ctx *gin.Context) {
	var req FeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	result, err := c.InterviewService.Submit(ctx.Request.Context(), service.SubmitRequest{
		UserID:       claims.UserID,
		CaseID:       req.CaseID,
		SectionID:    req.SectionID,
		ResponseText: req.ResponseText,
		SketchURL:    req.SketchURL,
		History:      req.ConversationHistory,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListResponses godoc
// @Summary Stored submissions for a case
// @Tags Cases
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "Case ID"
// @Success 200 {object} util.Response{data=[]model.UserResponse}
// @Router /api/cases/{id}/responses [get]
func (c *InterviewController) ListResponses(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	responses, err := c.InterviewService.ListResponses(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, responses)
}
