package controller

import (
	"bytes"
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	StorageService       *service.StorageService
	TranscriptionService *service.TranscriptionService
	MaxAudioBytes        int64
}

func NewUploadController(storage *service.StorageService, transcription *service.TranscriptionService, maxUploadMB int64) *UploadController {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &UploadController{
		StorageService:       storage,
		TranscriptionService: transcription,
		MaxAudioBytes:        maxUploadMB << 20,
	}
}

// swagger:model WhiteboardRequest
type WhiteboardRequest struct {
	ImageData string `json:"imageData" binding:"required"`
}

// UploadWhiteboard godoc
// @Summary Store a whiteboard sketch
// @Tags Uploads
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body WhiteboardRequest true "Canvas export as a data URL"
// @Success 201 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "Not an image"
// @Router /api/uploads/whiteboard [post]
func (c *UploadController) UploadWhiteboard(ctx *gin.Context) {
	var req WhiteboardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	url, err := c.StorageService.UploadWhiteboard(ctx.Request.Context(), claims.UserID, req.ImageData)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"url": url})
}

// Transcribe godoc
// @Summary Transcribe a voice answer
// @Tags Uploads
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   audio formData file true "Recording"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response "No audio"
// @Failure 502 {object} util.Response "Transcription failed"
// @Router /api/transcribe [post]
func (c *UploadController) Transcribe(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.MaxAudioBytes)
	file, _, err := ctx.Request.FormFile("audio")
	if err != nil {
		util.BadRequest(ctx, "No audio file provided")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	mimeType, err := util.ValidateMimeType(bytes.NewReader(audio), util.AllowedAudioTypes)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	text, err := c.TranscriptionService.Transcribe(ctx.Request.Context(), audio, mimeType)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"text": text})
}
