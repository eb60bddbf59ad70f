package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRenderAffiliateInvitation(t *testing.T) {
	subject, body, err := Render(TemplateAffiliateInvitation, map[string]any{
		"recipient_name": "Ola",
		"sender_name":    "Kari",
		"site_name":      "Norse Myths",
		"commission":     "15%",
		"accept_url":     "https://www.vegvisr.org/affiliate-registration?token=abc",
		"expires_at":     "8 March 2026",
	})
	require.NoError(t, err)
	assert.Equal(t, "Kari invited you to become an ambassador for Norse Myths", subject)
	assert.Contains(t, body, "Hi Ola,")
	assert.Contains(t, body, "https://www.vegvisr.org/affiliate-registration?token=abc")
	assert.Contains(t, body, "15%")
}

func TestRenderEscapesHTML(t *testing.T) {
	_, body, err := Render(TemplateAffiliateInvitation, map[string]any{
		"recipient_name": "<script>alert(1)</script>",
		"accept_url":     "https://example.com",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderSubjectOverride(t *testing.T) {
	subject, _, err := Render(TemplateAffiliateInvitation, map[string]any{"subject": "Custom"})
	require.NoError(t, err)
	assert.Equal(t, "Custom", subject)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("does_not_exist", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestBuildMessageHeaders(t *testing.T) {
	p := NewSMTP(Config{From: "noreply@vegvisr.org"})
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	msg := string(p.buildMessage([]string{"a@x.com"}, "Invitasjon til Ålesund", "<p>hi</p>"))
	assert.True(t, strings.HasPrefix(msg, "From: noreply@vegvisr.org\r\n"))
	assert.Contains(t, msg, "To: a@x.com\r\n")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>"))
}

func TestNoOpRequiresRecipients(t *testing.T) {
	p := NewNoOp(zaptest.NewLogger(t))
	assert.ErrorIs(t, p.SendTemplate(context.Background(), nil, TemplateAffiliateInvitation, map[string]any{}), ErrNoRecipients)
	assert.NoError(t, p.SendTemplate(context.Background(), []string{"a@x.com"}, TemplateAffiliateInvitation, map[string]any{}))
}

func TestNewFromConfig(t *testing.T) {
	log := zaptest.NewLogger(t)
	assert.IsType(t, &NoOpProvider{}, NewFromConfig(config.Config{Email: config.EmailConfig{Provider: "noop"}}, log))
	assert.IsType(t, &SMTPProvider{}, NewFromConfig(config.Config{Email: config.EmailConfig{Provider: "smtp"}}, log))
}
