package service

import (
	"crypto/rand"
	"strings"

	"github.com/gosimple/slug"
)

const (
	referralAlphabet  = "abcdefghjkmnpqrstuvwxyz23456789"
	maxReferralPrefix = 20
	// matches the referral_code column width
	maxReferralCodeLength = 32
	fallbackPrefix        = "ambassador"
)

// NewReferralCode builds "<slug>-<suffix>" where slug comes from the
// affiliate's name, falling back to the local part of the email.
func NewReferralCode(name, email string, suffixLen int) (string, error) {
	prefix := slug.Make(name)
	if prefix == "" {
		local, _, _ := strings.Cut(email, "@")
		prefix = slug.Make(local)
	}
	if prefix == "" {
		prefix = fallbackPrefix
	}
	limit := maxReferralCodeLength - 1 - suffixLen
	if limit > maxReferralPrefix {
		limit = maxReferralPrefix
	}
	if len(prefix) > limit {
		prefix = strings.TrimRight(prefix[:limit], "-")
	}

	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return prefix + "-" + string(buf), nil
}
