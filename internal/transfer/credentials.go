package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// DefaultServiceName identifies credentials in the system keyring
const DefaultServiceName = "anemone-transfer"

// ErrCredentialNotFound is returned when the keyring has no entry for an id
var ErrCredentialNotFound = errors.New("credential not found")

// Credentials is the JSON document stored in the keyring for a profile
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
}

// CredentialStore looks up secrets by credential id
type CredentialStore interface {
	Lookup(id string) (*Credentials, error)
}

// KeyringStore reads credentials from the OS keyring
type KeyringStore struct {
	service string
	logger  *zap.Logger
}

// NewKeyringStore creates a keyring-backed credential store
func NewKeyringStore(service string, logger *zap.Logger) *KeyringStore {
	if service == "" {
		service = DefaultServiceName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyringStore{
		service: service,
		logger:  logger.With(zap.String("component", "credentials")),
	}
}

// Lookup retrieves credentials for id. Entries that are not JSON are read
// as a bare password.
func (ks *KeyringStore) Lookup(id string) (*Credentials, error) {
	if id == "" {
		return nil, fmt.Errorf("credential id cannot be empty")
	}

	data, err := keyring.Get(ks.service, id)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
		}
		return nil, fmt.Errorf("failed to load credentials from keyring: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		creds = Credentials{Password: data}
	}

	ks.logger.Debug("credentials loaded from keyring", zap.String("credential_id", id))
	return &creds, nil
}

// Save stores credentials under id
func (ks *KeyringStore) Save(id string, creds *Credentials) error {
	if id == "" {
		return fmt.Errorf("credential id cannot be empty")
	}
	if creds == nil {
		return fmt.Errorf("credentials cannot be nil")
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := keyring.Set(ks.service, id, string(data)); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}

	ks.logger.Info("credentials saved to keyring", zap.String("credential_id", id))
	return nil
}

// Delete removes credentials for id
func (ks *KeyringStore) Delete(id string) error {
	if err := keyring.Delete(ks.service, id); err != nil {
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	ks.logger.Info("credentials deleted from keyring", zap.String("credential_id", id))
	return nil
}
