// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"
)

// Default scrypt parameters: N = 2^15, r = 8, p = 1.
const (
	DefaultScryptLogN = 15
	DefaultScryptR    = 8
	DefaultScryptP    = 1

	scryptSaltLen = 16
	scryptKeyLen  = 32
	scryptPrefix  = "scrypt"
)

// Bounds applied to parameters parsed from a stored hash. A stored string
// outside these bounds is treated as malformed rather than computed.
const (
	maxScryptLogN   = 20
	maxScryptR      = 32
	maxScryptP      = 16
	maxScryptKeyLen = 128
	maxScryptMemory = 1 << 30 // 128 * r * N bytes
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing scrypt hash of the secret.
	// It panics if the system entropy source fails.
	Hash(secret string) string

	// Verify reports whether the secret matches the stored hash.
	// A malformed stored hash verifies as false.
	Verify(secret, stored string) bool
}

// ScryptParams are the cost parameters for scrypt.
type ScryptParams struct {
	LogN int // N = 2^LogN
	R    int
	P    int
}

// DefaultScryptParams returns ln=15, r=8, p=1.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{LogN: DefaultScryptLogN, R: DefaultScryptR, P: DefaultScryptP}
}

// Validate checks that the parameters are usable for hashing.
func (p ScryptParams) Validate() error {
	if p.LogN < 1 || p.LogN > maxScryptLogN {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("ln", p.LogN).Errorf("ln must be between 1 and %d", maxScryptLogN)
	}
	if p.R < 1 || p.R > maxScryptR {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("r", p.R).Errorf("r must be between 1 and %d", maxScryptR)
	}
	if p.P < 1 || p.P > maxScryptP {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("p", p.P).Errorf("p must be between 1 and %d", maxScryptP)
	}
	if mem := 128 * p.R << p.LogN; mem > maxScryptMemory {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("memory", mem).Errorf("ln and r exceed the memory limit")
	}
	return nil
}

// ScryptHasher implements PasswordHasher using scrypt.
type ScryptHasher struct {
	params ScryptParams
}

// NewScryptHasher creates a ScryptHasher with the given cost parameters.
func NewScryptHasher(params ScryptParams) (*ScryptHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &ScryptHasher{params: params}, nil
}

// NewDefaultScryptHasher creates a ScryptHasher with the default parameters.
func NewDefaultScryptHasher() *ScryptHasher {
	return &ScryptHasher{params: DefaultScryptParams()}
}

// Params returns the cost parameters new hashes are produced with.
func (h *ScryptHasher) Params() ScryptParams {
	return h.params
}

// Hash produces a scrypt hash of the secret in the form
// $scrypt$ln=15,r=8,p=1$<salt>$<key>.
func (h *ScryptHasher) Hash(secret string) string {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic(oops.Code("AUTH_SALT_FAILED").Wrap(err))
	}

	key, err := scrypt.Key([]byte(secret), salt, 1<<h.params.LogN, h.params.R, h.params.P, scryptKeyLen)
	if err != nil {
		// Parameters were validated at construction.
		panic(oops.Code("AUTH_HASH_FAILED").Wrap(err))
	}

	return fmt.Sprintf(
		"$%s$ln=%d,r=%d,p=%d$%s$%s",
		scryptPrefix,
		h.params.LogN,
		h.params.R,
		h.params.P,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify checks the secret against a stored hash using the parameters
// recorded in the hash itself.
func (h *ScryptHasher) Verify(secret, stored string) bool {
	parsed, ok := parseScryptHash(stored)
	if !ok {
		return false
	}

	computed, err := scrypt.Key([]byte(secret), parsed.salt, 1<<parsed.params.LogN, parsed.params.R, parsed.params.P, len(parsed.key))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

type scryptHash struct {
	params ScryptParams
	salt   []byte
	key    []byte
}

func parseScryptHash(encoded string) (scryptHash, bool) {
	// "", "scrypt", "ln=..,r=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != scryptPrefix {
		return scryptHash{}, false
	}

	var params ScryptParams
	var trailing string
	n, _ := fmt.Sscanf(parts[2], "ln=%d,r=%d,p=%d%s", &params.LogN, &params.R, &params.P, &trailing) //nolint:errcheck // count checked below
	if n != 3 || trailing != "" {
		return scryptHash{}, false
	}
	if params.Validate() != nil {
		return scryptHash{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return scryptHash{}, false
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 || len(key) > maxScryptKeyLen {
		return scryptHash{}, false
	}

	return scryptHash{params: params, salt: salt, key: key}, true
}
