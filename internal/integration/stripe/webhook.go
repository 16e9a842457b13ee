package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
)

// defaultTolerance максимально допустимый возраст подписи.
// Защищает от replay старых запросов с валидной подписью.
const defaultTolerance = 5 * time.Minute

// SignatureHeader имя заголовка с подписью вебхука
const SignatureHeader = "Stripe-Signature"

// Verifier проверяет подлинность вебхук-уведомлений от Stripe
// по схеме подписи v1 (HMAC-SHA256 от "{timestamp}.{payload}").
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	log       *logger.Logger
}

// NewVerifier создает новый верификатор подписи вебхуков
func NewVerifier(webhookSecret string, log *logger.Logger) *Verifier {
	return &Verifier{
		secret:    []byte(webhookSecret),
		tolerance: defaultTolerance,
		log:       log,
	}
}

// signedHeader разобранный заголовок Stripe-Signature
type signedHeader struct {
	timestamp  time.Time
	signatures [][]byte
}

// parseSignatureHeader разбирает заголовок вида "t=1492774577,v1=5257a8...".
// Элементы с неизвестными префиксами игнорируются, как того требует схема.
func parseSignatureHeader(header string) (*signedHeader, error) {
	sh := &signedHeader{}

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: malformed signature header", domain.ErrSignatureInvalid)
		}

		switch strings.TrimSpace(parts[0]) {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad timestamp in signature header", domain.ErrSignatureInvalid)
			}
			sh.timestamp = time.Unix(ts, 0)
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue
			}
			sh.signatures = append(sh.signatures, sig)
		}
	}

	if len(sh.signatures) == 0 {
		return nil, fmt.Errorf("%w: no v1 signatures in header", domain.ErrSignatureInvalid)
	}
	if sh.timestamp.IsZero() {
		return nil, fmt.Errorf("%w: no timestamp in signature header", domain.ErrSignatureInvalid)
	}

	return sh, nil
}

// computeSignature вычисляет ожидаемую подпись для тела и метки времени
func (v *Verifier) computeSignature(timestamp time.Time, payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp.Unix())
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify проверяет подпись тела запроса.
// Пустой заголовок — отдельная ошибка ErrSignatureMissing: платёжная
// система должна получить отказ с текстом "no signature".
func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	if header == "" {
		return domain.ErrSignatureMissing
	}

	sh, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if now.Sub(sh.timestamp) > v.tolerance {
		v.log.Warnw("Webhook signature timestamp outside tolerance",
			"timestamp", sh.timestamp, "tolerance", v.tolerance)
		return fmt.Errorf("%w: signature timestamp too old", domain.ErrSignatureInvalid)
	}

	expected := v.computeSignature(sh.timestamp, payload)
	for _, sig := range sh.signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}

	return domain.ErrSignatureInvalid
}
