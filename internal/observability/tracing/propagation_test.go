package tracing

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/validate-invitation"),
		attribute.String("invitation_token", "01hx"),
		attribute.String("recipient_email", "a@x.com"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorMasksEmailsAndTokens(t *testing.T) {
	err := SafeError(errors.New("GET /validate-invitation?token=abc123 failed for a.b@x.com"))
	assert.Equal(t, "GET /validate-invitation?token=[redacted] failed for [email]", err.Error())
	assert.Nil(t, SafeError(nil))
}

func TestWrapHTTPClientKeepsTimeout(t *testing.T) {
	base := &http.Client{Timeout: 3}
	wrapped := WrapHTTPClient(base)
	assert.Equal(t, base.Timeout, wrapped.Timeout)
	assert.NotNil(t, wrapped.Transport)
	assert.Nil(t, base.Transport)
}
