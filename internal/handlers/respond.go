package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
)

const minPasswordLength = 6

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// validatePassword enforces the password rules shared by sign-up, invite
// acceptance, and password reset. Checked before any store access so bad
// input fails fast.
func validatePassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 6 characters")
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}
	return nil
}

// generateToken returns an unguessable URL-safe capability token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken derives the at-rest form of a capability token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
