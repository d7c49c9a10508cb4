// Package email sends transactional mail over SMTP or AWS SES, selected by
// configuration.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// SMTPConfig holds the SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender sends via a plain SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	server string
	auth   smtp.Auth
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		server: cfg.Host + ":" + cfg.Port,
		auth:   smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
	}
}

func (s *SMTPSender) Send(_ context.Context, to []string, subject, htmlBody string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n%s\r\n", htmlBody)
	return smtp.SendMail(s.server, s.auth, s.cfg.From, to, msg.Bytes())
}

// SESSender sends via AWS SES.
type SESSender struct {
	client *sesv2.Client
	from   string
}

func NewSESSender(ctx context.Context, region, from string) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

func (s *SESSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// Service renders and sends the product's transactional mails. A nil sender
// turns the service into a no-op, which is how local development runs.
type Service struct {
	sender Sender
}

func NewService(sender Sender) *Service {
	return &Service{sender: sender}
}

func (s *Service) IsConfigured() bool {
	return s != nil && s.sender != nil
}

// SendPasswordReset mails the reset link.
func (s *Service) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	if !s.IsConfigured() {
		return nil
	}
	html, err := render(passwordResetTemplate, map[string]string{"ResetURL": resetURL})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, []string{to}, "Reset your Wishlane password", html)
}

// SendGroupInvite notifies an invited address that a group is waiting for
// them.
func (s *Service) SendGroupInvite(ctx context.Context, to, inviterName, groupName, joinURL string) error {
	if !s.IsConfigured() {
		return nil
	}
	html, err := render(groupInviteTemplate, map[string]string{
		"Inviter": inviterName,
		"Group":   groupName,
		"JoinURL": joinURL,
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, []string{to}, fmt.Sprintf("%s invited you to %s on Wishlane", inviterName, groupName), html)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

const passwordResetTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Wishlane</h1>
    <h2>Password Reset Request</h2>
    <p>We received a request to reset your password. Click the link below to choose a new one:</p>
    <p><a href="{{.ResetURL}}">Reset Password</a></p>
    <p>This link expires in 1 hour. If you didn't request a reset, ignore this email.</p>
</body>
</html>`

const groupInviteTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Wishlane</h1>
    <h2>You're invited!</h2>
    <p>{{.Inviter}} invited you to join the group <strong>{{.Group}}</strong> on Wishlane.</p>
    <p><a href="{{.JoinURL}}">Join the group</a></p>
</body>
</html>`
