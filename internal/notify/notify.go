// Package notify announces finished runs over email, Slack and Telegram.
package notify

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"net/http"
	"net/smtp"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/retry"
)

// TelegramAPI is the default Telegram bot endpoint.
const TelegramAPI = "https://api.telegram.org"

//go:embed templates
var templateFS embed.FS

var (
	emailTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/email.html"))
	textTemplates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))
)

// Message is what gets announced.
type Message struct {
	SummaryPath   string
	ChangelogPath string
	Artifacts     []string
}

type content struct {
	SummaryPath string
	Artifacts   []string
	Changelog   string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends to every configured channel.
type Notifier struct {
	cfg     config.NotifyConfig
	journal *journal.Journal

	// HTTPClient is used for Slack and Telegram.
	HTTPClient *http.Client

	// TelegramAPI overrides the Telegram endpoint.
	TelegramAPI string

	// SendMail delivers email. smtp.SendMail upgrades with STARTTLS when offered.
	SendMail SendMailFunc
}

// New returns a notifier for cfg. j may be nil.
func New(cfg config.NotifyConfig, j *journal.Journal) *Notifier {
	return &Notifier{
		cfg:         cfg,
		journal:     j,
		HTTPClient:  &http.Client{},
		TelegramAPI: TelegramAPI,
		SendMail:    smtp.SendMail,
	}
}

// Channels lists the configured channels.
func (n *Notifier) Channels() []string {
	var out []string
	if n.emailReady() {
		out = append(out, "email")
	}
	if n.cfg.SlackURL != "" {
		out = append(out, "slack")
	}
	if n.cfg.TelegramToken != "" && n.cfg.TelegramChatID != "" {
		out = append(out, "telegram")
	}
	return out
}

func (n *Notifier) emailReady() bool {
	c := n.cfg
	return c.SMTPServer != "" && c.SMTPPort != 0 && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPTo != ""
}

// NotifyAll sends msg to every configured channel concurrently. Channel
// failures are logged and do not fail the call.
func (n *Notifier) NotifyAll(ctx context.Context, msg Message) {
	c := content{SummaryPath: msg.SummaryPath, Artifacts: msg.Artifacts}
	if data, err := os.ReadFile(msg.ChangelogPath); err == nil {
		c.Changelog = string(data)
	}

	var g errgroup.Group
	send := func(channel string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logger.Warn("notification failed", "channel", channel, "error", err)
			}
			return nil
		})
	}

	if n.emailReady() {
		send("email", func() error { return n.sendEmail(c) })
	}
	if n.cfg.SlackURL != "" {
		send("slack", func() error { return n.sendSlack(ctx, c) })
	}
	if n.cfg.TelegramToken != "" && n.cfg.TelegramChatID != "" {
		send("telegram", func() error { return n.sendTelegram(ctx, c) })
	}
	g.Wait()

	if n.journal != nil {
		n.journal.Log("Notifier", "notification sent")
	}
}

func (n *Notifier) sendEmail(c content) error {
	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, c); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.SMTPUser)
	fmt.Fprintf(&msg, "To: %s\r\n", n.cfg.SMTPTo)
	msg.WriteString("Subject: CI Notification\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.Write(body.Bytes())

	addr := n.cfg.SMTPServer + ":" + strconv.Itoa(n.cfg.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPServer)
	return n.SendMail(addr, auth, n.cfg.SMTPUser, []string{n.cfg.SMTPTo}, msg.Bytes())
}

func (n *Notifier) sendSlack(ctx context.Context, c content) error {
	text, err := render("slack.txt", c)
	if err != nil {
		return err
	}

	payload := map[string]any{"text": text}
	if len(c.Artifacts) > 0 {
		attachments := make([]map[string]string, 0, len(c.Artifacts))
		for _, a := range c.Artifacts {
			attachments = append(attachments, map[string]string{"text": a})
		}
		payload["attachments"] = attachments
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.post(ctx, "Slack webhook", n.cfg.SlackURL, "application/json", body)
}

func (n *Notifier) sendTelegram(ctx context.Context, c content) error {
	text, err := render("telegram.txt", c)
	if err != nil {
		return err
	}
	form := url.Values{"chat_id": {n.cfg.TelegramChatID}, "text": {text}}
	endpoint := strings.TrimRight(n.TelegramAPI, "/") + "/bot" + n.cfg.TelegramToken + "/sendMessage"
	return n.post(ctx, "Telegram sendMessage", endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()))
}

func (n *Notifier) post(ctx context.Context, operation, endpoint, contentType string, body []byte) error {
	return retry.Do(ctx, retry.WebhookConfig(), operation, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := n.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("%s returned status %d: %s", operation, resp.StatusCode, respBody))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned status %d: %s", operation, resp.StatusCode, respBody)
		}
		return nil
	})
}

func render(name string, c content) (string, error) {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, c); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
