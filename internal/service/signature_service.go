package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
)

// HMACSignatureService implements ports.SignatureService for processor
// webhooks. The header is "t=<unix>,v1=<hex>[,v1=<hex>...]" and each v1 is
// hex(hmac_sha256(secret, "<unix>.<body>")). Several v1 values appear while
// the processor rotates its signing secret.
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// SignHeader builds the header a processor would send for body at ts.
func (s *HMACSignatureService) SignHeader(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(mac(secret, unix, body)))
}

// VerifyHeader returns domain.ErrSignatureExpired when t is outside
// tolerance of now and domain.ErrSignatureInvalid for anything else wrong.
func (s *HMACSignatureService) VerifyHeader(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return domain.ErrSignatureExpired
	}

	expected := mac(secret, ts, body)
	for _, c := range candidates {
		got, err := hex.DecodeString(c)
		if err == nil && hmac.Equal(expected, got) {
			return nil
		}
	}
	return domain.ErrSignatureInvalid
}

func mac(secret string, ts int64, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(strconv.AppendInt(nil, ts, 10))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		ts   int64
		sigs []string
		err  error
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("signature timestamp: %w", err)
			}
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("signature header missing t or v1")
	}
	return ts, sigs, nil
}
