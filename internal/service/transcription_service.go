package service

import (
	"bytes"
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// synchronous Recognize rejects longer audio
const syncRecognizeMaxSeconds = 60

// Transcriber converts recorded audio to text in a single attempt.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Name() string
}

type TranscriptionService struct {
	Transcriber Transcriber
}

// NewTranscriptionService builds the configured provider. A gcp provider that
// cannot be constructed falls back to Whisper.
func NewTranscriptionService(cfg *config.Config, client *http.Client) *TranscriptionService {
	if client == nil {
		client = &http.Client{}
	}
	whisper := NewWhisperTranscriber(cfg.AI.OpenAI, cfg.Transcription, client)

	if cfg.Transcription.Provider == util.TranscriptionGCP {
		gcp, err := NewGCPSpeechTranscriber(context.Background(), cfg.Transcription)
		if err == nil {
			return &TranscriptionService{Transcriber: gcp}
		}
		logger.Log.Error("GCP speech unavailable, using whisper", zap.Error(err))
	}
	return &TranscriptionService{Transcriber: whisper}
}

func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: no audio provided", util.ErrValidation)
	}
	ctx, span := tracing.StartSpan(ctx, "transcription.transcribe",
		attribute.String("transcription.provider", s.Transcriber.Name()),
		attribute.Int("audio.bytes", len(audio)))

	text, err := s.Transcriber.Transcribe(ctx, audio, mimeType)
	tracing.EndSpan(span, err)
	if errors.Is(err, util.ErrValidation) {
		return "", err
	}
	if err != nil {
		logger.Log.Warn("Transcription failed",
			zap.String("provider", s.Transcriber.Name()),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
	}
	return strings.TrimSpace(text), nil
}

// WhisperTranscriber posts to an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperTranscriber struct {
	ai     config.OpenAIConfig
	cfg    config.TranscriptionConfig
	client *http.Client
}

func NewWhisperTranscriber(ai config.OpenAIConfig, cfg config.TranscriptionConfig, client *http.Client) *WhisperTranscriber {
	return &WhisperTranscriber{ai: ai, cfg: cfg, client: client}
}

func (t *WhisperTranscriber) Name() string { return util.TranscriptionOpenAI }

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "recording"+util.ExtensionFor("", mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	fields := map[string]string{
		"model":           t.cfg.Model,
		"language":        t.cfg.Language,
		"response_format": "json",
		"prompt":          t.cfg.Prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := strings.TrimRight(t.ai.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.ai.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// GCPSpeechTranscriber uses Cloud Speech-to-Text synchronous recognition.
type GCPSpeechTranscriber struct {
	client *speech.Client
	cfg    config.TranscriptionConfig
}

func NewGCPSpeechTranscriber(ctx context.Context, cfg config.TranscriptionConfig) (*GCPSpeechTranscriber, error) {
	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.GCPCredentials); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GCPSpeechTranscriber{client: client, cfg: cfg}, nil
}

func (t *GCPSpeechTranscriber) Name() string { return util.TranscriptionGCP }

func (t *GCPSpeechTranscriber) Close() error {
	return t.client.Close()
}

func (t *GCPSpeechTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               speechLanguageCode(t.cfg.Language),
		EnableAutomaticPunctuation: true,
		Encoding:                   speechEncoding(mimeType),
	}

	if t.cfg.NormalizeAudio {
		flac, info, err := normalizeRecording(audio, mimeType)
		if err != nil {
			logger.Log.Warn("Audio normalization failed, sending original", zap.Error(err))
		} else {
			if info != nil && info.Duration > syncRecognizeMaxSeconds {
				return "", fmt.Errorf("%w: recording is %.0fs, at most %ds is supported", util.ErrValidation, info.Duration, syncRecognizeMaxSeconds)
			}
			audio = flac
			rc.Encoding = speechpb.RecognitionConfig_FLAC
			rc.SampleRateHertz = 16000
			rc.AudioChannelCount = 1
		}
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("speech recognize returned no transcript")
	}
	return strings.Join(parts, " "), nil
}

// normalizeRecording re-encodes audio as 16 kHz mono FLAC through ffmpeg and
// probes the result.
func normalizeRecording(audio []byte, mimeType string) ([]byte, *util.AudioInfo, error) {
	if !util.FFmpegAvailable() {
		return nil, nil, errors.New("ffmpeg not found on PATH")
	}
	dir, err := os.MkdirTemp("", "caseprep-audio-")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+util.ExtensionFor("", mimeType))
	out := filepath.Join(dir, "output.flac")
	if err := os.WriteFile(in, audio, 0600); err != nil {
		return nil, nil, err
	}
	if err := util.NormalizeAudio(in, out); err != nil {
		return nil, nil, err
	}
	info, err := util.ProbeAudio(out)
	if err != nil {
		logger.Log.Debug("Probe of normalized audio failed", zap.Error(err))
		info = nil
	}
	flac, err := os.ReadFile(out)
	if err != nil {
		return nil, nil, err
	}
	return flac, info, nil
}

func speechLanguageCode(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "sv":
		return "sv-SE"
	case "en":
		return "en-US"
	}
	return lang
}

func speechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return speechpb.RecognitionConfig_MP3
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
}
