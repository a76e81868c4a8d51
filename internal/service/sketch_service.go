package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/tracing"
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sketchPromptSV = "Beskriv vad denna whiteboard-skiss visar. Var koncis och fokusera på det väsentliga. Svara på svenska och använd max 250 tecken."
	sketchPromptEN = "Describe what this whiteboard sketch shows. Be concise and focus on the essentials. Answer in English using at most 250 characters."
)

// SketchService describes whiteboard sketches with a vision model.
type SketchService struct {
	vision      *OpenAIBackend
	model       string
	placeholder string
	timeout     time.Duration
}

func NewSketchService(cfg *config.AIConfig, client *http.Client) *SketchService {
	if client == nil {
		client = &http.Client{}
	}
	return &SketchService{
		vision:      NewOpenAIBackend(cfg.OpenAI, client),
		model:       cfg.OpenAI.VisionModel,
		placeholder: cfg.SketchPlaceholder,
		timeout:     cfg.Timeout,
	}
}

// Describe returns a short description of the image, or the placeholder when
// the vision call fails.
func (s *SketchService) Describe(ctx context.Context, imageURL, language string) string {
	if strings.TrimSpace(imageURL) == "" {
		return ""
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, "sketch.describe")

	instruction := sketchPromptEN
	if strings.EqualFold(language, "sv") {
		instruction = sketchPromptSV
	}

	text, err := s.vision.Chat(ctx, ChatCompletionRequest{
		Model: s.model,
		Messages: []AIChatMessage{{
			Role: "user",
			Content: []map[string]interface{}{
				{"type": "text", "text": instruction},
				{"type": "image_url", "image_url": map[string]string{"url": imageURL, "detail": "low"}},
			},
		}},
		MaxTokens: 150,
	})
	tracing.EndSpan(span, err)
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Log.Warn("Sketch description failed", zap.String("imageURL", imageURL), zap.Error(err))
		return s.placeholder
	}
	return strings.TrimSpace(text)
}
