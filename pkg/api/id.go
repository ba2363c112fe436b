package api

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	sessionIDPrefix = "sess_"

	// opaqueTokenBytes is the entropy of invite and refresh tokens.
	opaqueTokenBytes = 64

	// OpaqueTokenLength is the encoded length of invite and refresh tokens:
	// 64 bytes in unpadded base64url.
	OpaqueTokenLength = 86
)

var (
	sessionIDPattern   = regexp.MustCompile(`^sess_[a-zA-Z0-9]{24}$`)
	opaqueTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{86}$`)
)

// NewSessionID generates a new session ID with the "sess_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewSessionID() string {
	return sessionIDPrefix + randomAlphanumeric(idLength)
}

// ValidateSessionID checks whether the given string is a valid session ID
// (matches "sess_" + 24 alphanumeric characters).
func ValidateSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NewInviteToken generates a fixed-length random invite token.
func NewInviteToken() string {
	return randomOpaque()
}

// NewRefreshToken generates a fixed-length random refresh token. It has no
// structure and is only ever compared by equality.
func NewRefreshToken() string {
	return randomOpaque()
}

// ValidateOpaqueToken reports whether s has the shape of an invite or
// refresh token. It is a cheap pre-check before hitting storage.
func ValidateOpaqueToken(s string) bool {
	return opaqueTokenPattern.MatchString(s)
}

func randomOpaque() string {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
