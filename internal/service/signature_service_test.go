package service

import (
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignatureService_SignHeader(t *testing.T) {
	svc := NewHMACSignatureService()
	header := svc.SignHeader("whsec_test", time.Unix(1760000000, 0), []byte(`{"id":"evt_1"}`))

	assert.Regexp(t, `^t=1760000000,v1=[0-9a-f]{64}$`, header)
	assert.Equal(t, header, svc.SignHeader("whsec_test", time.Unix(1760000000, 0), []byte(`{"id":"evt_1"}`)))
}

func TestHMACSignatureService_VerifyHeader(t *testing.T) {
	svc := NewHMACSignatureService()
	now := time.Unix(1760000000, 0)
	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	good := svc.SignHeader("whsec_test", now, body)

	tests := []struct {
		name   string
		secret string
		header string
		body   []byte
		want   error
	}{
		{"valid", "whsec_test", good, body, nil},
		{"rotated secret listed second", "whsec_test", "t=1760000000,v1=00ff," + good[len("t=1760000000,"):], body, nil},
		{"wrong secret", "whsec_other", good, body, domain.ErrSignatureInvalid},
		{"tampered body", "whsec_test", good, []byte(`{"id":"evt_2"}`), domain.ErrSignatureInvalid},
		{"not hex", "whsec_test", "t=1760000000,v1=zz", body, domain.ErrSignatureInvalid},
		{"missing v1", "whsec_test", "t=1760000000", body, domain.ErrSignatureInvalid},
		{"bad timestamp", "whsec_test", "t=soon,v1=00", body, domain.ErrSignatureInvalid},
		{"empty", "whsec_test", "", body, domain.ErrSignatureInvalid},
		{"stale", "whsec_test", svc.SignHeader("whsec_test", now.Add(-6*time.Minute), body), body, domain.ErrSignatureExpired},
		{"from the future", "whsec_test", svc.SignHeader("whsec_test", now.Add(6*time.Minute), body), body, domain.ErrSignatureExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.VerifyHeader(tt.secret, tt.header, tt.body, now, 5*time.Minute)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSignatureHeader(t *testing.T) {
	ts, sigs, err := parseSignatureHeader("t=1700000000, v1=aa ,v0=zz,v1=bb")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, []string{"aa", "bb"}, sigs)
}
