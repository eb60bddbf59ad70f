package tracing

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	tokenPattern = regexp.MustCompile(`(?i)token=[^&\s]+`)
)

var sensitiveAttributeKeys = map[attribute.Key]struct{}{
	"recipient_email":  {},
	"email":            {},
	"invitation_token": {},
	"token":            {},
}

// ExtractContext pulls upstream trace context out of carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes that can carry personal data or secrets.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := sensitiveAttributeKeys[attr.Key]; ok {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns err with email addresses and tokens masked, for span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := emailPattern.ReplaceAllString(err.Error(), "[email]")
	msg = tokenPattern.ReplaceAllString(msg, "token=[redacted]")
	return errors.New(msg)
}

// WrapHTTPClient returns a copy of client whose transport emits client spans
// and propagates trace headers.
func WrapHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	wrapped := *client
	base := wrapped.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = otelhttp.NewTransport(base)
	return &wrapped
}
