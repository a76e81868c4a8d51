package service

import (
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/monitoring"
	"caseprep_backend/pkg/tracing"
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Evaluation is the outcome of one feedback call.
type Evaluation struct {
	Feedback string
	Passed   bool
	Raw      string
	Backend  string
	// Fallback is set when the backend failed and Feedback is the configured fallback text.
	Fallback bool
}

type FeedbackService struct {
	Backend      CompletionBackend
	Timeout      time.Duration
	FallbackText string
}

func NewFeedbackService(backend CompletionBackend, timeout time.Duration, fallbackText string) *FeedbackService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FeedbackService{
		Backend:      backend,
		Timeout:      timeout,
		FallbackText: fallbackText,
	}
}

// Evaluate makes a single backend call and never fails: errors, timeouts and
// empty replies degrade to the fallback text with a failing verdict.
func (s *FeedbackService) Evaluate(ctx context.Context, prompt *Prompt) *Evaluation {
	backend := s.Backend.Name()
	ctx, span := tracing.StartSpan(ctx, "feedback.evaluate", attribute.String("llm.backend", backend))

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.Backend.Complete(callCtx, prompt.Text)
	monitoring.LLMRequestDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("completion backend returned an empty reply")
	}
	if err != nil {
		tracing.EndSpan(span, err)
		logger.Log.Warn("Feedback evaluation fell back",
			zap.String("backend", backend),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		monitoring.FeedbackEvaluations.WithLabelValues(backend, "fallback").Inc()
		return &Evaluation{
			Feedback: s.FallbackText,
			Passed:   false,
			Backend:  backend,
			Fallback: true,
		}
	}

	feedback, passed := ParseVerdict(raw, prompt.Sentinel)
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	span.SetAttributes(attribute.Bool("feedback.passed", passed))
	tracing.EndSpan(span, nil)
	monitoring.FeedbackEvaluations.WithLabelValues(backend, verdict).Inc()

	return &Evaluation{
		Feedback: feedback,
		Passed:   passed,
		Raw:      raw,
		Backend:  backend,
	}
}

// ParseVerdict reports whether raw carries the pass line and returns the text
// with every verdict line removed. Text without any verdict line is returned
// as is and counts as a failure.
func ParseVerdict(raw string, sentinel Sentinel) (string, bool) {
	passLine, failLine := sentinel.PassLine(), sentinel.FailLine()
	passed := strings.Contains(raw, passLine)
	if !passed && !strings.Contains(raw, failLine) {
		return raw, false
	}

	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.Contains(line, passLine) && !strings.Contains(line, failLine) {
			kept = append(kept, line)
			continue
		}
		stripped := strings.ReplaceAll(line, passLine, "")
		stripped = strings.ReplaceAll(stripped, failLine, "")
		if strings.TrimSpace(stripped) == "" {
			continue
		}
		kept = append(kept, stripped)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), passed
}
