package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	mail "github.com/wneessen/go-mail"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailSink sends HTML alert emails over SMTP.
type EmailSink struct {
	cfg  EmailConfig
	send func(ctx context.Context, m *mail.Msg) error
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender is empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 2525
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &EmailSink{cfg: cfg}
	s.send = s.dialAndSend
	return s, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, a *Alert) error {
	if a == nil {
		return nil
	}
	if a.Recipient == "" {
		return fmt.Errorf("alert %s has no recipient", a.ScanID)
	}
	m, err := s.message(a)
	if err != nil {
		return err
	}
	return s.send(ctx, m)
}

func (s *EmailSink) Close(context.Context) error { return nil }

func (s *EmailSink) message(a *Alert) (*mail.Msg, error) {
	body, err := renderAlert(a)
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}
	m := mail.NewMsg()
	if err := m.FromFormat("LinkBuster AI", s.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(a.Recipient); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(Subject(a))
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

func (s *EmailSink) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// Subject is the email subject line for a.
func Subject(a *Alert) string {
	return fmt.Sprintf("AI Threat Detection: %s Risk URL", a.Level)
}

var alertTemplate = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 10px;">
  <h2 style="color: #dc3545; text-align: center;">AI-Powered Security Alert</h2>
  <div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 15px 0;">
    <h3>AI Analysis Summary</h3>
    <p><strong>Risk Level:</strong> <span style="color: #dc3545;">{{.Level}}</span></p>
    <p><strong>Risk Score:</strong> {{.RiskScore}}/100</p>
    <p><strong>AI Confidence:</strong> {{printf "%.1f" .Confidence}}%</p>
    <p><strong>Analysis Time:</strong> {{.Timestamp.Format "2006-01-02 15:04:05"}}</p>
  </div>
  <div style="background: #fff3cd; padding: 15px; border-radius: 5px; margin: 15px 0;">
    <h3>Detected URL</h3>
    <p style="word-break: break-all; font-family: monospace; background: white; padding: 10px;"><strong>{{.URL}}</strong></p>
  </div>
  <div style="background: #e2e3e5; padding: 15px; border-radius: 5px; margin: 15px 0;">
    <h3>AI Insights</h3>
    <ul>{{range .Insights}}<li>{{.}}</li>{{else}}<li>Threat detected</li>{{end}}</ul>
  </div>
  <div style="background: #f8d7da; padding: 15px; border-radius: 5px; margin: 15px 0;">
    <h3>Detected Threats</h3>
    <ul>{{range .Threats}}<li>{{.}}</li>{{else}}<li>Malicious content identified</li>{{end}}</ul>
  </div>
  <div style="background: #d1ecf1; padding: 15px; border-radius: 5px; margin: 15px 0;">
    <h3>Recommended Actions</h3>
    <ul>
      <li><strong>DO NOT</strong> click this link</li>
      <li><strong>DO NOT</strong> enter personal information</li>
      <li><strong>Report</strong> to IT security team</li>
      <li><strong>Delete</strong> suspicious messages</li>
      <li><strong>Monitor</strong> for unusual activity</li>
    </ul>
  </div>
  <hr>
  <p style="font-size: 12px; color: #666; text-align: center;">
    <strong>AI-Powered Threat Intelligence System</strong><br>
    This alert was generated by LinkBuster<br>
    Scan ID: {{.ScanID}}
  </p>
</div>
</body>
</html>
`))

func renderAlert(a *Alert) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, a); err != nil {
		return "", err
	}
	return buf.String(), nil
}
