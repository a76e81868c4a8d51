package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/util"
	"caseprep_backend/pkg/logger"
	"caseprep_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"

	metadataUserID       = "userId"
	metadataCreditAmount = "creditAmount"
)

// CheckoutGateway is the slice of the payment provider API the service needs.
type CheckoutGateway interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(id string) (*stripe.CheckoutSession, error)
}

type stripeGateway struct {
	client *session.Client
}

// NewStripeGateway returns nil when no secret key is configured.
func NewStripeGateway(secretKey string) CheckoutGateway {
	if secretKey == "" {
		return nil
	}
	return &stripeGateway{client: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}}
}

func (g *stripeGateway) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return g.client.New(params)
}

func (g *stripeGateway) GetSession(id string) (*stripe.CheckoutSession, error) {
	return g.client.Get(id, nil)
}

// CreditPackages is the hot-reloadable catalogue of purchasable credit bundles.
type CreditPackages struct {
	mu       sync.RWMutex
	packages []config.CreditPackage
}

func NewCreditPackages(packages []config.CreditPackage) *CreditPackages {
	p := &CreditPackages{}
	p.Set(packages)
	return p
}

func (p *CreditPackages) Set(packages []config.CreditPackage) {
	cp := make([]config.CreditPackage, len(packages))
	copy(cp, packages)
	p.mu.Lock()
	p.packages = cp
	p.mu.Unlock()
}

func (p *CreditPackages) List() []config.CreditPackage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]config.CreditPackage, len(p.packages))
	copy(cp, p.packages)
	return cp
}

func (p *CreditPackages) Find(credits int) (config.CreditPackage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pkg := range p.packages {
		if pkg.Credits == credits {
			return pkg, true
		}
	}
	return config.CreditPackage{}, false
}

// CheckoutStatus is what the client sees after returning from the payment page.
type CheckoutStatus struct {
	SessionID     string `json:"sessionId"`
	PaymentStatus string `json:"paymentStatus"`
	Paid          bool   `json:"paid"`
	Credits       int    `json:"credits"`
	Applied       bool   `json:"applied"`
}

type CheckoutService struct {
	Gateway       CheckoutGateway
	Packages      *CreditPackages
	CreditService *CreditService
	CreditRepo    *repository.CreditRepository
	UserRepo      *repository.UserRepository
	Mail          MailService
	Cfg           config.StripeConfig
}

func NewCheckoutService(
	gateway CheckoutGateway,
	packages *CreditPackages,
	creditService *CreditService,
	creditRepo *repository.CreditRepository,
	userRepo *repository.UserRepository,
	mail MailService,
	cfg config.StripeConfig,
) *CheckoutService {
	if mail == nil {
		mail = nopMailer{}
	}
	return &CheckoutService{
		Gateway:       gateway,
		Packages:      packages,
		CreditService: creditService,
		CreditRepo:    creditRepo,
		UserRepo:      userRepo,
		Mail:          mail,
		Cfg:           cfg,
	}
}

// CreateCheckout opens a payment session for a configured credit package and
// returns the hosted checkout URL.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, email, priceID string, creditAmount int) (string, error) {
	if s.Gateway == nil {
		return "", util.ErrPaymentsDisabled
	}
	pkg, ok := s.Packages.Find(creditAmount)
	if !ok || pkg.PriceID != priceID {
		return "", util.ErrInvalidCreditPackage
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(pkg.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(s.Cfg.SuccessURL),
		CancelURL:         stripe.String(s.Cfg.CancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	params.Context = ctx
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata(metadataUserID, userID)
	params.AddMetadata(metadataCreditAmount, strconv.Itoa(pkg.Credits))

	sess, err := s.Gateway.NewSession(params)
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %v", util.ErrUpstreamUnavailable, err)
	}
	if sess.URL == "" {
		return "", fmt.Errorf("%w: checkout session %s has no url", util.ErrUpstreamUnavailable, sess.ID)
	}

	logger.Log.Info("Checkout session created",
		zap.String("userID", userID),
		zap.String("sessionID", sess.ID),
		zap.Int("credits", pkg.Credits))
	return sess.URL, nil
}

// HandleWebhook verifies and applies a payment event. Completed sessions
// credit the ledger once per session id; replays are acknowledged without
// effect.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.Cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		monitoring.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		logger.Log.Warn("Webhook signature verification failed", zap.Error(err))
		return fmt.Errorf("%w: %v", util.ErrWebhookSignature, err)
	}

	eventType := string(event.Type)
	switch eventType {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded:
	default:
		monitoring.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		monitoring.WebhookEvents.WithLabelValues(eventType, "invalid").Inc()
		return fmt.Errorf("%w: malformed checkout session: %v", util.ErrValidation, err)
	}

	// delayed payment methods complete unpaid and settle with async_payment_succeeded
	if eventType == eventCheckoutCompleted && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logger.Log.Info("Checkout completed without payment, waiting for settlement",
			zap.String("sessionID", sess.ID),
			zap.String("paymentStatus", string(sess.PaymentStatus)))
		monitoring.WebhookEvents.WithLabelValues(eventType, "unpaid").Inc()
		return nil
	}

	userID := sess.Metadata[metadataUserID]
	credits, convErr := strconv.Atoi(sess.Metadata[metadataCreditAmount])
	if userID == "" || convErr != nil || credits <= 0 {
		monitoring.WebhookEvents.WithLabelValues(eventType, "invalid").Inc()
		logger.Log.Error("Checkout session is missing credit metadata",
			zap.String("sessionID", sess.ID),
			zap.Any("metadata", sess.Metadata))
		// acknowledged so stripe stops redelivering an event that can never apply
		return nil
	}

	_, err = s.CreditService.AddCredits(ctx, CreditEntry{
		UserID:      userID,
		Amount:      credits,
		Type:        model.TransactionPurchase,
		Description: fmt.Sprintf("Purchased %d credits", credits),
		Metadata: map[string]interface{}{
			"sessionId": sess.ID,
			"eventId":   event.ID,
		},
		Reference: checkoutReference(sess.ID),
	})
	if IsDuplicate(err) {
		monitoring.WebhookEvents.WithLabelValues(eventType, "duplicate").Inc()
		logger.Log.Info("Checkout already credited", zap.String("sessionID", sess.ID))
		return nil
	}
	if err != nil {
		monitoring.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return err
	}
	monitoring.WebhookEvents.WithLabelValues(eventType, "applied").Inc()

	s.sendReceipt(ctx, userID, credits, &sess)
	return nil
}

func (s *CheckoutService) sendReceipt(ctx context.Context, userID string, credits int, sess *stripe.CheckoutSession) {
	receipt := Receipt{Credits: credits, SessionID: sess.ID}
	if sess.CustomerDetails != nil {
		receipt.ToEmail = sess.CustomerDetails.Email
		receipt.ToName = sess.CustomerDetails.Name
	}
	if s.UserRepo != nil {
		if user, err := s.UserRepo.FindByID(ctx, userID); err == nil {
			receipt.ToEmail = user.Email
			receipt.ToName = user.Name
		}
	}
	receipt.Balance, _ = s.CreditService.GetBalance(ctx, userID)

	go func() {
		if err := s.Mail.SendReceipt(receipt); err != nil {
			logger.Log.Warn("Receipt e-mail failed", zap.String("sessionID", sess.ID), zap.Error(err))
		}
	}()
}

// GetCheckoutStatus reports the payment state of a session owned by userID.
func (s *CheckoutService) GetCheckoutStatus(ctx context.Context, userID, sessionID string) (*CheckoutStatus, error) {
	if s.Gateway == nil {
		return nil, util.ErrPaymentsDisabled
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", util.ErrValidation)
	}
	sess, err := s.Gateway.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve checkout session: %v", util.ErrUpstreamUnavailable, err)
	}
	if sess.Metadata[metadataUserID] != userID {
		return nil, util.ErrPermissionDenied
	}

	credits, _ := strconv.Atoi(sess.Metadata[metadataCreditAmount])
	status := &CheckoutStatus{
		SessionID:     sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Credits:       credits,
	}
	if _, err := s.CreditRepo.FindByReference(ctx, checkoutReference(sess.ID)); err == nil {
		status.Applied = true
	}
	return status, nil
}

func checkoutReference(sessionID string) string {
	return "checkout:" + sessionID
}
