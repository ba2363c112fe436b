// Package password hashes and verifies member passwords with Argon2id.
//
// A server-held secret is mixed into every hash: the password is first
// keyed through HMAC-SHA256 with the secret and the MAC is what Argon2id
// stretches. A leaked credential table is therefore useless without the
// secret. Salts are per-credential and stored next to the hash.
package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters. They are fixed for the lifetime
// of a Hasher; changing them invalidates every stored hash.
type Params struct {
	// Memory is the memory cost in KiB.
	Memory uint32

	// Iterations is the number of passes over memory.
	Iterations uint32

	// Parallelism is the number of lanes.
	Parallelism uint8

	// SaltLength is the size of generated salts in bytes.
	SaltLength uint32

	// KeyLength is the size of the derived hash in bytes.
	KeyLength uint32
}

// DefaultParams returns the production cost: 64 MiB, 4 passes, 2 lanes,
// 256-byte salt and 256-byte output.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  4,
		Parallelism: 2,
		SaltLength:  256,
		KeyLength:   256,
	}
}

func (p Params) validate() error {
	var errs []error
	if p.Memory < 8*uint32(p.Parallelism) {
		errs = append(errs, fmt.Errorf("memory must be at least 8 KiB per lane, got %d", p.Memory))
	}
	if p.Iterations == 0 {
		errs = append(errs, errors.New("iterations must be > 0"))
	}
	if p.Parallelism == 0 {
		errs = append(errs, errors.New("parallelism must be > 0"))
	}
	if p.SaltLength < 16 {
		errs = append(errs, fmt.Errorf("salt length must be at least 16 bytes, got %d", p.SaltLength))
	}
	if p.KeyLength < 16 {
		errs = append(errs, fmt.Errorf("key length must be at least 16 bytes, got %d", p.KeyLength))
	}
	return errors.Join(errs...)
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	params Params
	secret []byte
}

// New creates a Hasher. The secret is copied.
func New(params Params, secret []byte) (*Hasher, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid password params: %w", err)
	}
	if len(secret) == 0 {
		return nil, errors.New("password secret is required")
	}
	return &Hasher{
		params: params,
		secret: append([]byte(nil), secret...),
	}, nil
}

// Hash derives a hash for password. When salt is nil a fresh random salt
// of Params.SaltLength bytes is generated. The salt actually used is
// returned alongside the hash.
func (h *Hasher) Hash(password string, salt []byte) (hash, usedSalt []byte, err error) {
	if salt == nil {
		salt = make([]byte, h.params.SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("generating salt: %w", err)
		}
	}
	return h.derive(password, salt), salt, nil
}

// Verify reports whether password matches the stored hash and salt. The
// comparison is constant-time; a mismatch of any kind returns false.
func (h *Hasher) Verify(password string, hash, salt []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, salt), hash) == 1
}

func (h *Hasher) derive(password string, salt []byte) []byte {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(password))
	return argon2.IDKey(mac.Sum(nil), salt,
		h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
}
