package cryptox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// The pepper is mixed into every password hash and lives outside the database.
var (
	pepperMu sync.RWMutex
	pepper   string
)

// LoadPepper reads the pepper from file, creating the file with a fresh random
// pepper when it does not exist yet.
func LoadPepper(file string) error {
	file = filepath.Clean(file)
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return fmt.Errorf("cryptox: pepper dir: %w", err)
	}

	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		p, genErr := newPepper()
		if genErr != nil {
			return genErr
		}
		if err := os.WriteFile(file, []byte(p), 0o600); err != nil {
			return fmt.Errorf("cryptox: write pepper: %w", err)
		}
		SetPepper(p)
		return nil
	case err != nil:
		return fmt.Errorf("cryptox: read pepper: %w", err)
	}

	p := strings.TrimSpace(string(data))
	if p == "" {
		return errors.New("cryptox: pepper file is empty")
	}
	SetPepper(p)
	return nil
}

// SetPepper installs p as the process pepper.
func SetPepper(p string) {
	pepperMu.Lock()
	pepper = p
	pepperMu.Unlock()
}

// Pepper returns the process pepper. If none was loaded an in-memory one is
// generated, so hashes made before LoadPepper will not survive a restart.
func Pepper() string {
	pepperMu.RLock()
	p := pepper
	pepperMu.RUnlock()
	if p != "" {
		return p
	}

	pepperMu.Lock()
	defer pepperMu.Unlock()
	if pepper == "" {
		generated, err := newPepper()
		if err != nil {
			panic(err)
		}
		pepper = generated
	}
	return pepper
}

func newPepper() (string, error) {
	return RandomSecret(SecretSize)
}
