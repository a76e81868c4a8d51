package controller

import (
	"bytes"
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/service"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/database"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBackend struct {
	reply string
}

func (b stubBackend) Name() string { return "stub" }

func (b stubBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return b.reply, nil
}

type testServer struct {
	router  *gin.Engine
	credits *service.CreditService
}

func newTestServer(t *testing.T, reply string) *testServer {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, "test")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	creditsCfg := &config.CreditsConfig{SignupBonus: 3, CaseCost: 1}
	creditRepo := repository.NewCreditRepository(db)
	creditSvc := service.NewCreditService(db, creditRepo)
	progressSvc := service.NewProgressService(db, repository.NewProgressRepository(db), creditSvc, creditsCfg)
	caseSvc := service.NewCaseService(repository.NewCaseRepository(db), nil, 0)
	interviewSvc := service.NewInterviewService(db, caseSvc, progressSvc, creditSvc,
		repository.NewResponseRepository(db), nil,
		service.NewFeedbackService(stubBackend{reply: reply}, time.Second, "fallback"),
		creditsCfg)
	packages := service.NewCreditPackages([]config.CreditPackage{{Credits: 10, PriceID: "price_10"}})
	checkoutSvc := service.NewCheckoutService(nil, packages, creditSvc, creditRepo, nil, nil,
		config.StripeConfig{WebhookSecret: "whsec_test"})

	bc := &model.BusinessCase{ID: "case-1", Title: "Coffee", Language: "en"}
	for i := 0; i < 2; i++ {
		bc.Sections = append(bc.Sections, model.CaseSection{
			ID:         fmt.Sprintf("case-1-s%d", i+1),
			Prompt:     "Question?",
			OrderIndex: i,
		})
	}
	require.NoError(t, caseSvc.CaseRepo.Upsert(context.Background(), bc))

	interview := NewInterviewController(interviewSvc, progressSvc)
	credit := NewCreditController(creditSvc, packages)
	checkout := NewCheckoutController(checkoutSvc)

	r := gin.New()
	r.POST("/api/webhooks/stripe", checkout.Webhook)
	authed := r.Group("/api", func(c *gin.Context) {
		c.Set("user", &util.Claims{UserID: "user-1", Email: "ada@example.com", Role: model.Candidate})
		c.Next()
	})
	authed.POST("/cases/:id/start", interview.StartCase)
	authed.POST("/case-feedback", interview.SubmitFeedback)
	authed.GET("/progress/:caseId", interview.GetProgress)
	authed.GET("/credits/balance", credit.GetBalance)

	return &testServer{router: r, credits: creditSvc}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestStartAndSubmitOverHTTP(t *testing.T) {
	s := newTestServer(t, "Well structured.\nCRITERIA MET: Yes")

	code, resp := s.do(t, http.MethodPost, "/api/cases/case-1/start", nil)
	require.Equal(t, http.StatusOK, code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["balance"])
	assert.Equal(t, "case-1-s1", data["firstSectionId"])

	code, resp = s.do(t, http.MethodPost, "/api/case-feedback", FeedbackRequest{
		CaseID:       "case-1",
		SectionID:    "case-1-s1",
		ResponseText: "Profit equals revenue minus cost.",
		ConversationHistory: []model.ConversationTurn{
			{Role: model.RoleInterviewer, Content: "How would you structure it?"},
		},
	})
	require.Equal(t, http.StatusOK, code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["passed"])
	assert.Equal(t, "Well structured.", data["feedback"])
	assert.Equal(t, "case-1-s2", data["nextSectionId"])

	code, resp = s.do(t, http.MethodGet, "/api/progress/case-1", nil)
	require.Equal(t, http.StatusOK, code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["completedSections"])
}

func TestSubmitErrorsOverHTTP(t *testing.T) {
	s := newTestServer(t, "CRITERIA MET: Yes")

	code, _ := s.do(t, http.MethodPost, "/api/case-feedback", FeedbackRequest{CaseID: "case-1", SectionID: "case-1-s1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/case-feedback", FeedbackRequest{CaseID: "case-1", SectionID: "case-1-s1", ResponseText: "x"})
	assert.Equal(t, http.StatusConflict, code, "case not started")

	code, _ = s.do(t, http.MethodPost, "/api/cases/case-1/start", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/api/case-feedback", FeedbackRequest{CaseID: "case-1", SectionID: "case-1-s2", ResponseText: "x"})
	assert.Equal(t, http.StatusConflict, code, "section locked")

	code, _ = s.do(t, http.MethodPost, "/api/cases/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartWithoutCreditsOverHTTP(t *testing.T) {
	s := newTestServer(t, "CRITERIA MET: Yes")
	ctx := context.Background()

	code, _ := s.do(t, http.MethodPost, "/api/cases/case-1/start", nil)
	require.Equal(t, http.StatusOK, code)
	_, err := s.credits.DebitCredits(ctx, "user-1", 2, "spent")
	require.NoError(t, err)

	// completing the case makes the next start a paid restart
	for _, section := range []string{"case-1-s1", "case-1-s2"} {
		code, _ = s.do(t, http.MethodPost, "/api/case-feedback", FeedbackRequest{CaseID: "case-1", SectionID: section, ResponseText: "x"})
		require.Equal(t, http.StatusOK, code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/cases/case-1/start", nil)
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, resp := s.do(t, http.MethodGet, "/api/credits/balance", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), resp["data"].(map[string]interface{})["balance"])
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe",
		strings.NewReader(`{"id":"evt_1","object":"event","type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
