package transfer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// LocalProfile is the implicit profile used by jobs without a connection
const LocalProfile = "local"

// Factory opens transfer clients from named connection profiles
type Factory struct {
	localFs     afero.Fs
	endpointFs  afero.Fs
	credentials CredentialStore
	logger      *zap.Logger

	mu       sync.RWMutex
	profiles map[string]Settings
}

// NewFactory creates a factory. localFs is the job-side filesystem; it also
// backs local-protocol endpoints. credentials may be nil when no profile
// uses a credential id.
func NewFactory(profiles map[string]Settings, localFs afero.Fs, credentials CredentialStore, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if localFs == nil {
		localFs = afero.NewOsFs()
	}
	f := &Factory{
		localFs:     localFs,
		endpointFs:  localFs,
		credentials: credentials,
		logger:      logger.With(zap.String("component", "transfer-factory")),
		profiles:    make(map[string]Settings, len(profiles)+1),
	}
	f.profiles[LocalProfile] = Settings{Name: LocalProfile, Protocol: ProtocolLocal}
	for name, s := range profiles {
		s.Name = name
		f.profiles[name] = s
	}
	return f
}

// LocalFs returns the job-side filesystem
func (f *Factory) LocalFs() afero.Fs {
	return f.localFs
}

// SetProfile adds or replaces a profile. Clients already open keep their snapshot.
func (f *Factory) SetProfile(name string, s Settings) error {
	s.Name = name
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.profiles[name] = s
	f.mu.Unlock()
	return nil
}

// Profile returns a copy of the named profile
func (f *Factory) Profile(name string) (Settings, bool) {
	if name == "" {
		name = LocalProfile
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.profiles[name]
	return s, ok
}

// Profiles returns the profile names in order
func (f *Factory) Profiles() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.profiles))
	for name := range f.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open snapshots the named profile, resolves its password and connects.
func (f *Factory) Open(ctx context.Context, name string) (Client, error) {
	settings, ok := f.Profile(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if settings.CredentialID != "" {
		if f.credentials == nil {
			return nil, fmt.Errorf("profile %q needs credential %q but no credential store is configured", settings.Name, settings.CredentialID)
		}
		creds, err := f.credentials.Lookup(settings.CredentialID)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", settings.Name, err)
		}
		settings.Password = creds.Password
		if settings.Username == "" {
			settings.Username = creds.Username
		}
		if settings.Domain == "" {
			settings.Domain = creds.Domain
		}
	}

	f.logger.Debug("opening transfer client",
		zap.String("profile", settings.Name),
		zap.String("protocol", string(settings.Protocol)))

	switch settings.Protocol {
	case ProtocolLocal:
		return NewLocalClient(settings, f.localFs, f.endpointFs, f.logger), nil
	case ProtocolFTP:
		return DialFTP(ctx, settings, f.localFs, f.logger)
	case ProtocolSFTP:
		return DialSFTP(ctx, settings, f.localFs, f.logger)
	case ProtocolSMB:
		c, err := NewSMBClient(settings, f.localFs, f.logger)
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, settings.Protocol)
	}
}

// Test opens the profile, checks the connection and closes it
func (f *Factory) Test(ctx context.Context, name string) error {
	client, err := f.Open(ctx, name)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.TestConnection(ctx)
}
