package service

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/pkg/logger"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const sendgridHost = "https://api.sendgrid.com"

// Receipt is the content of a purchase confirmation.
type Receipt struct {
	ToName    string
	ToEmail   string
	Credits   int
	SessionID string
	Balance   int
}

type MailService interface {
	SendReceipt(r Receipt) error
}

// NewMailService returns a no-op mailer when mail is disabled or unconfigured.
func NewMailService(cfg *config.MailConfig) MailService {
	if !cfg.Enabled || cfg.SendgridAPIKey == "" {
		return nopMailer{}
	}
	return NewSendGridMailer(cfg.SendgridAPIKey, cfg.AppName, cfg.FromEmail, sendgridHost)
}

type nopMailer struct{}

func (nopMailer) SendReceipt(Receipt) error { return nil }

type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

func NewSendGridMailer(key, appName, fromEmail, host string) *SendGridMailer {
	return &SendGridMailer{
		key:        key,
		host:       host,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

func (m *SendGridMailer) prepare(r Receipt) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + "Your credit purchase"
	p.AddTos(sgmail.NewEmail(r.ToName, r.ToEmail))

	text := fmt.Sprintf("Thank you for your purchase!\n\n%d credits have been added to your account. Your balance is now %d credits.\n\nReference: %s\n",
		r.Credits, r.Balance, r.SessionID)
	html := fmt.Sprintf("<p>Thank you for your purchase!</p><p><strong>%d credits</strong> have been added to your account. Your balance is now %d credits.</p><p>Reference: %s</p>",
		r.Credits, r.Balance, r.SessionID)

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", html),
	)
	return msg
}

func (m *SendGridMailer) SendReceipt(r Receipt) error {
	if r.ToEmail == "" {
		return nil
	}
	req := sendgrid.GetRequest(m.key, "/v3/mail/send", m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(r))

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid error (status %d): %s", res.StatusCode, res.Body)
	}
	logger.Log.Info("Receipt sent", zap.String("to", r.ToEmail), zap.String("sessionID", r.SessionID))
	return nil
}
