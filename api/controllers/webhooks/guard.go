package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxPayloadBytes = 64 << 10
)

// EventGuard deduplicates deliveries by provider event id.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// readSignedPayload reads the body and, when secret is set, checks the
// hex HMAC-SHA256 signature header against it. Bodies over maxPayloadBytes
// are rejected rather than truncated.
func readSignedPayload(w http.ResponseWriter, r *http.Request, secret string) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload too large").
				WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if secret == "" {
		return payload, nil
	}
	header := strings.TrimSpace(r.Header.Get(signatureHeader))
	if header == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	if !validSignature(payload, secret, header) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return payload, nil
}

func validSignature(payload []byte, secret, header string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(header)))
}
