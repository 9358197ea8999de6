// Package secrets resolves API keys from files, inline configuration or the
// environment.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is returned when no source yields a value.
var ErrNotConfigured = errors.New("not configured")

// Source lists where a secret may come from, in priority order: File, Value,
// then the Env variable.
type Source struct {
	Name  string
	File  string
	Value string
	Env   string
}

func (s Source) name() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return "secret"
}

// Load returns the trimmed secret. A configured but unreadable or empty file
// is an error even when Value or Env are set.
func Load(src Source) (string, error) {
	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", src.name(), file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", src.name(), file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
	}

	return "", fmt.Errorf("%s is %w", src.name(), ErrNotConfigured)
}

// Optional is Load for secrets whose absence only disables a feature: a
// missing secret yields "" and no error.
func Optional(src Source) (string, error) {
	secret, err := Load(src)
	if errors.Is(err, ErrNotConfigured) {
		return "", nil
	}
	return secret, err
}
