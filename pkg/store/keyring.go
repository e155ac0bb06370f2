package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName       = "com.fleetnav.navshare"
	keyringCredentialService = "credentials"
)

// KeyringConfig selects and configures the system credential store backend.
type KeyringConfig struct {
	// Backend limits the keyring to a single backend type. Leave empty to
	// let the keyring library pick the platform default.
	Backend keyring.BackendType
	// Path is the directory used by the file backend.
	Path string
	// PasswordFunc supplies the password for encrypted backends. Defaults
	// to an interactive terminal prompt.
	PasswordFunc keyring.PromptFunc
}

// Keyring stores one JSON-encoded CredentialRecord per user in the system
// keyring, so records survive process restarts without a database.
type Keyring struct {
	backend keyring.Config
}

func NewKeyring(config KeyringConfig) *Keyring {
	backend := keyring.Config{
		ServiceName:              keyringServiceName,
		KeychainTrustApplication: true,
		KeyCtlScope:              "user",
		FileDir:                  config.Path,
	}
	if config.Backend != "" {
		backend.AllowedBackends = []keyring.BackendType{config.Backend}
	}
	prompt := config.PasswordFunc
	if prompt == nil {
		prompt = terminalPrompt
	}
	backend.KeychainPasswordFunc = prompt
	backend.FilePasswordFunc = prompt
	return &Keyring{backend: backend}
}

// AvailableBackends lists keyring backends supported on this platform.
func AvailableBackends() []keyring.BackendType {
	return keyring.AvailableBackends()
}

func (k *Keyring) open() (keyring.Keyring, error) {
	return keyring.Open(k.backend)
}

func credentialKey(userID string) string {
	return keyringCredentialService + "." + userID
}

func (k *Keyring) Get(userID string) (*CredentialRecord, error) {
	kr, err := k.open()
	if err != nil {
		return nil, err
	}
	item, err := kr.Get(credentialKey(userID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load credentials: %s", err)
	}
	var record CredentialRecord
	if err := json.Unmarshal(item.Data, &record); err != nil {
		return nil, fmt.Errorf("invalid credential record for %s: %w", userID, err)
	}
	return &record, nil
}

func (k *Keyring) Put(record *CredentialRecord) error {
	kr, err := k.open()
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{Key: credentialKey(record.UserID), Data: data}); err != nil {
		return fmt.Errorf("failed to enroll credentials in keyring: %s", err)
	}
	return nil
}

func (k *Keyring) Delete(userID string) error {
	kr, err := k.open()
	if err != nil {
		return err
	}
	err = kr.Remove(credentialKey(userID))
	// The file backend surfaces os.Remove's ENOENT directly instead of
	// mapping it to keyring.ErrKeyNotFound.
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func terminalPrompt(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

// BackendFlag is a flag.Value that restricts the keyring to one backend.
type BackendFlag struct {
	Config *KeyringConfig
}

func (b BackendFlag) String() string {
	if b.Config == nil || b.Config.Backend == "" {
		return string(keyring.InvalidBackend)
	}
	return string(b.Config.Backend)
}

func (b BackendFlag) Set(v string) error {
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == keyring.BackendType(v) {
			b.Config.Backend = name
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage backend %q", v)
}
