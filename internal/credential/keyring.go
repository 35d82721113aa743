// Package credential keeps IMAP app passwords in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "notafiscal"

// ErrNotFound is returned when no password is stored for an address.
var ErrNotFound = errors.New("no stored password")

// openFunc opens the keyring. Tests replace it with an in-memory ring.
var openFunc = openKeyring

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/notafiscal/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("notafiscal-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// PasswordKey returns the keyring key of the app password for address.
func PasswordKey(address string) string {
	return "imap-" + strings.ToLower(strings.TrimSpace(address))
}

// Password returns the stored app password for address.
func Password(address string) (string, error) {
	ring, err := openFunc()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(PasswordKey(address))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting password: %w", err)
	}

	return string(item.Data), nil
}

// SetPassword stores the app password for address. Spaces are removed,
// since app passwords are displayed in groups of four.
func SetPassword(address, password string) error {
	ring, err := openFunc()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   PasswordKey(address),
		Data:  []byte(strings.ReplaceAll(password, " ", "")),
		Label: "notafiscal IMAP app password",
	})
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}

	return nil
}

// DeletePassword removes the stored password for address. Removing a
// missing password is not an error.
func DeletePassword(address string) error {
	ring, err := openFunc()
	if err != nil {
		return err
	}

	err = ring.Remove(PasswordKey(address))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting password: %w", err)
	}

	return nil
}
