package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// DefaultKeyID names the keyring entry of the database key when none is configured
const DefaultKeyID = "database-key"

// ResolveKey returns the database encryption key. An explicit key wins;
// otherwise the key is read from the keyring and created on first use.
func ResolveKey(explicit, service, id string, logger *zap.Logger) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if service == "" {
		service = transfer.DefaultServiceName
	}
	if id == "" {
		id = DefaultKeyID
	}

	key, err := keyring.Get(service, id)
	if err == nil && key != "" {
		return key, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("read database key from keyring: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate database key: %w", err)
	}
	key = hex.EncodeToString(buf)
	if err := keyring.Set(service, id, key); err != nil {
		return "", fmt.Errorf("store database key in keyring: %w", err)
	}
	logger.Info("generated new database key", zap.String("keyring_service", service), zap.String("key_id", id))
	return key, nil
}
