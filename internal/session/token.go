// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of a session token. Encoded as 64 hex chars.
const TokenBytes = 32

// GenerateToken creates a random client token and its storage hash.
func GenerateToken() (token, tokenHash string, err error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the SHA-256 hex digest of a token. Only the digest is
// stored server-side.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// wellFormedToken reports whether s looks like a token produced by
// GenerateToken.
func wellFormedToken(s string) bool {
	if len(s) != TokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
