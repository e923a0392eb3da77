package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const (
	// BackupCodeAlphabet omits 0/O and 1/I so codes survive being read aloud.
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// BackupCodeLength is the number of significant characters per code (50 bits).
	BackupCodeLength = 10

	// DefaultBackupCodeCount is how many codes a fresh set holds.
	DefaultBackupCodeCount = 8
)

// GenerateBackupCodes returns n random recovery codes formatted as XXXXX-XXXXX.
// The plaintext is shown once and only hashes are stored.
func GenerateBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("backup code count must be positive, got %d", n)
	}
	codes := make([]string, n)
	for i := range codes {
		code, err := newBackupCode()
		if err != nil {
			return nil, err
		}
		codes[i] = FormatBackupCode(code)
	}
	return codes, nil
}

func newBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(BackupCodeLength)
	limit := big.NewInt(int64(len(BackupCodeAlphabet)))
	for range BackupCodeLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode splits a canonical code in half with a dash.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalBackupCode upper-cases and strips dashes and spaces, so users may
// type codes however they like.
func CanonicalBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// HashBackupCode returns the stored form of a code: an HMAC-SHA256 keyed with
// the pepper over the user id and the canonical code. Binding the user id
// means one user's hash is useless against another's set.
func HashBackupCode(userID, code string) string {
	mac := hmac.New(sha256.New, []byte(Pepper()))
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(CanonicalBackupCode(code)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HashBackupCodes hashes each code, preserving order.
func HashBackupCodes(userID string, codes []string) []string {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashBackupCode(userID, c)
	}
	return hashes
}

// VerifyBackupCode reports whether code is a member of hashes. Every entry is
// compared so the running time does not depend on the match position.
func VerifyBackupCode(userID, code string, hashes []string) bool {
	return indexBackupCode(userID, code, hashes) >= 0
}

// ConsumeBackupCode removes the matching hash and returns the remaining set.
// It does not touch storage: callers persist the result with a conditional
// write, or use a store that deletes the single row atomically.
func ConsumeBackupCode(userID, code string, hashes []string) ([]string, bool) {
	idx := indexBackupCode(userID, code, hashes)
	if idx < 0 {
		return hashes, false
	}
	remaining := make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:idx]...)
	remaining = append(remaining, hashes[idx+1:]...)
	return remaining, true
}

func indexBackupCode(userID, code string, hashes []string) int {
	if CanonicalBackupCode(code) == "" {
		return -1
	}
	want := []byte(HashBackupCode(userID, code))
	found := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare(want, []byte(h)) == 1 && found < 0 {
			found = i
		}
	}
	return found
}
