package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordMismatch = errors.New("cryptox: password does not match")
	ErrMalformedHash    = errors.New("cryptox: malformed password hash")
)

// argonParams is the cost tuple encoded in a PHC string.
type argonParams struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
}

// defaultParams applies to new hashes. Verification always uses the tuple
// stored in the hash, so raising these does not break existing accounts.
var defaultParams = argonParams{Memory: 19 * 1024, Time: 2, Threads: 1}

const (
	keyLength  = 32
	saltLength = 16
)

func (p argonParams) derive(password string, salt []byte, n uint32) []byte {
	return argon2.IDKey([]byte(password+Pepper()), salt, p.Time, p.Memory, p.Threads, n)
}

// HashPassword returns a peppered Argon2id hash in PHC form:
// $argon2id$v=19$m=..,t=..,p=..$salt$key
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: salt: %w", err)
	}
	p := defaultParams
	key := p.derive(password, salt, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: parameters: %v", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, salt, key, nil
}

// VerifyPassword checks password against a hash from HashPassword. A wrong
// password yields ErrPasswordMismatch and an unreadable hash an error
// wrapping ErrMalformedHash.
func VerifyPassword(password, encoded string) error {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return err
	}
	// #nosec G115 - key length comes from the decoded hash
	if subtle.ConstantTimeCompare(p.derive(password, salt, uint32(len(key))), key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// DummyVerify performs one full verification against a throwaway hash, so a
// lookup miss costs the same as a wrong password.
func DummyVerify(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = HashPassword("estate-portal-dummy")
	})
	if dummyHash != "" {
		_ = VerifyPassword(password, dummyHash)
	}
}
