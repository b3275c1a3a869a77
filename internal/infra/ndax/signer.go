package ndax

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strconv"

	"ndax_bridge/internal/domain"
)

// Nonce bounds for AuthenticateUser.
const (
	nonceMin = 1000
	nonceMax = 9999
)

// Signer builds AuthenticateUser payloads.
type Signer struct {
	cred  domain.Credential
	nonce func() int
}

// NewSigner creates a Signer drawing nonces from math/rand.
func NewSigner(cred domain.Credential) *Signer {
	return &Signer{
		cred:  cred,
		nonce: func() int { return nonceMin + rand.Intn(nonceMax-nonceMin+1) },
	}
}

// Sign returns hex(HMAC-SHA256(secret, nonce + userId + apiKey)).
func (s *Signer) Sign(nonce int) string {
	message := strconv.Itoa(nonce) + strconv.FormatInt(s.cred.UserID, 10) + s.cred.APIKey
	return computeHmacSha256(message, s.cred.Secret)
}

// Request returns a signed payload with a fresh nonce.
func (s *Signer) Request() authRequest {
	nonce := s.nonce()
	return authRequest{
		APIKey:    s.cred.APIKey,
		Signature: s.Sign(nonce),
		UserID:    strconv.FormatInt(s.cred.UserID, 10),
		Nonce:     strconv.Itoa(nonce),
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
