package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

// signatureHex считает hex-подпись v1 для тела и метки времени
func signatureHex(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// signPayload строит валидный заголовок Stripe-Signature для тела
func signPayload(secret string, payload []byte, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), signatureHex(secret, payload, ts))
}

func newTestVerifier() *Verifier {
	return NewVerifier(testSecret, logger.New(logger.ERROR))
}

func TestVerifier_ValidSignature(t *testing.T) {
	v := newTestVerifier()
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	header := signPayload(testSecret, payload, now)

	require.NoError(t, v.Verify(payload, header, now))
}

func TestVerifier_MissingHeader(t *testing.T) {
	v := newTestVerifier()

	err := v.Verify([]byte(`{}`), "", time.Now())

	assert.ErrorIs(t, err, domain.ErrSignatureMissing)
}

func TestVerifier_WrongSecret(t *testing.T) {
	v := newTestVerifier()
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload("whsec_other_secret", payload, now)

	assert.ErrorIs(t, v.Verify(payload, header, now), domain.ErrSignatureInvalid)
}

func TestVerifier_TamperedPayload(t *testing.T) {
	v := newTestVerifier()
	now := time.Now()

	header := signPayload(testSecret, []byte(`{"id":"evt_1"}`), now)

	assert.ErrorIs(t, v.Verify([]byte(`{"id":"evt_2"}`), header, now), domain.ErrSignatureInvalid)
}

func TestVerifier_TimestampOutsideTolerance(t *testing.T) {
	v := newTestVerifier()
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload(testSecret, payload, now.Add(-time.Hour))

	assert.ErrorIs(t, v.Verify(payload, header, now), domain.ErrSignatureInvalid)
}

func TestVerifier_MalformedHeader(t *testing.T) {
	v := newTestVerifier()

	for _, header := range []string{
		"garbage",
		"t=notanumber,v1=deadbeef",
		"t=1492774577", // нет подписей
		"v1=deadbeef",  // нет метки времени
	} {
		err := v.Verify([]byte(`{}`), header, time.Now())
		assert.ErrorIs(t, err, domain.ErrSignatureInvalid, "header: %s", header)
	}
}

func TestVerifier_SecondValidSignatureAccepted(t *testing.T) {
	// При ротации секрета Stripe шлет несколько v1-подписей
	v := newTestVerifier()
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(),
		signatureHex("whsec_old_secret", payload, now),
		signatureHex(testSecret, payload, now))

	require.NoError(t, v.Verify(payload, header, now))
}
