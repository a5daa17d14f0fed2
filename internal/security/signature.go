package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifyGitHubSignature checks the X-Hub-Signature-256 header value against
// an HMAC-SHA256 of the raw request body. Any missing, malformed or
// mismatched signature is invalid.
func VerifyGitHubSignature(payload []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return false
	}
	sig := strings.TrimSpace(signatureHeader)
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	expected, err := hex.DecodeString(strings.ToLower(sig[len("sha256="):]))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}

// VerifyGitLabToken compares the X-Gitlab-Token header value against the
// stored per-repository token in constant time.
func VerifyGitLabToken(tokenHeader, token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tokenHeader), []byte(token)) == 1
}
