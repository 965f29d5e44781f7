// Package credential stores secrets such as the push gateway token in the
// operating system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "journalmate"

// ErrNotConfigured is returned when a credential is neither in the
// environment nor in the keyring.
var ErrNotConfigured = errors.New("credential not configured")

// open is replaced in tests.
var open = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/journalmate/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("journalmate-file-key"),
		KeychainTrustApplication: true,
	})
}

// withRing opens the keyring and runs fn against it, tagging any error
// with the operation and key.
func withRing(op, key string, fn func(keyring.Keyring) error) error {
	ring, err := open()
	if err != nil {
		return fmt.Errorf("opening keyring: %w", err)
	}
	if err := fn(ring); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			err = ErrNotConfigured
		}
		return fmt.Errorf("%s credential %q: %w", op, key, err)
	}
	return nil
}

// Get returns the keyring value stored under key.
func Get(key string) (string, error) {
	var value string
	err := withRing("reading", key, func(ring keyring.Keyring) error {
		item, err := ring.Get(key)
		if err != nil {
			return err
		}
		value = strings.TrimSpace(string(item.Data))
		if value == "" {
			return ErrNotConfigured
		}
		return nil
	})
	return value, err
}

// Set stores value under key, replacing any previous entry.
func Set(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("storing credential %q: empty value", key)
	}
	return withRing("storing", key, func(ring keyring.Keyring) error {
		return ring.Set(keyring.Item{
			Key:         key,
			Data:        []byte(value),
			Label:       "JournalMate " + key,
			Description: "JournalMate notification scheduler",
		})
	})
}

// Delete removes key. Removing an absent key is not an error.
func Delete(key string) error {
	err := withRing("removing", key, func(ring keyring.Keyring) error {
		return ring.Remove(key)
	})
	if errors.Is(err, ErrNotConfigured) {
		return nil
	}
	return err
}

// Resolve returns the value of envVar when it is set and the keyring entry
// for key otherwise. Containers usually inject the token through the
// environment; workstations keep it in the keyring.
func Resolve(key, envVar string) (string, error) {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return v, nil
		}
	}
	v, err := Get(key)
	if errors.Is(err, ErrNotConfigured) && envVar != "" {
		return "", fmt.Errorf("%w: set %s or run `push-token set`", err, envVar)
	}
	return v, err
}
