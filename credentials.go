package idp

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/password"
)

// ErrUserExists is an exported constant or variable used by the authentication engine.
var ErrUserExists = errors.New("username already registered")

type localUser struct {
	id           string
	username     string
	passwordHash string
	email        string
	phone        string
	profile      map[string]string
}

type localTenant struct {
	users       map[string]*localUser
	byUsername  map[string]string
	byEmail     map[string]string
	byPhone     map[string]string
	byAssertion map[string]string
}

// LocalCredentialStore is an in-memory, tenant-scoped [CredentialStore] with
// Argon2id password hashing, for embedders without an account backend and for
// tests. All methods are safe for concurrent use.
type LocalCredentialStore struct {
	mu      sync.RWMutex
	hasher  *password.Argon2
	tenants map[string]*localTenant
}

// NewLocalCredentialStore describes the newlocalcredentialstore operation and its observable behavior.
//
// NewLocalCredentialStore may return an error when input validation, dependency calls, or security checks fail.
// NewLocalCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewLocalCredentialStore(cfg PasswordConfig) (*LocalCredentialStore, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCredentialStore{
		hasher:  hasher,
		tenants: make(map[string]*localTenant),
	}, nil
}

func (s *LocalCredentialStore) tenant(tenantID string) *localTenant {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = &localTenant{
			users:       make(map[string]*localUser),
			byUsername:  make(map[string]string),
			byEmail:     make(map[string]string),
			byPhone:     make(map[string]string),
			byAssertion: make(map[string]string),
		}
		s.tenants[tenantID] = t
	}
	return t
}

// VerifyPassword describes the verifypassword operation and its observable behavior.
//
// VerifyPassword may return an error when input validation, dependency calls, or security checks fail.
// VerifyPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LocalCredentialStore) VerifyPassword(ctx context.Context, tenantID, username, secret string) (string, bool, error) {
	_ = ctx

	s.mu.RLock()
	var user *localUser
	if t, ok := s.tenants[tenantID]; ok {
		if id, ok := t.byUsername[username]; ok {
			user = t.users[id]
		}
	}
	s.mu.RUnlock()

	if user == nil {
		return "", false, nil
	}

	ok, err := s.hasher.Verify(secret, user.passwordHash)
	if err != nil || !ok {
		return "", false, nil
	}
	return user.id, true, nil
}

// VerifyWebAuthnAssertion checks an assertion previously registered with
// [LocalCredentialStore.RegisterWebAuthnAssertion]. A real deployment backs
// this with an authenticator library; the local store only supports
// pre-registered opaque assertions.
func (s *LocalCredentialStore) VerifyWebAuthnAssertion(ctx context.Context, tenantID string, assertion []byte) (string, bool, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return "", false, nil
	}
	id, ok := t.byAssertion[string(assertion)]
	if !ok {
		return "", false, nil
	}
	return id, true, nil
}

// RegisterWebAuthnAssertion binds an opaque assertion blob to a user.
func (s *LocalCredentialStore) RegisterWebAuthnAssertion(tenantID, userID string, assertion []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID).byAssertion[string(assertion)] = userID
}

// LookupEmail describes the lookupemail operation and its observable behavior.
//
// LookupEmail may return an error when input validation, dependency calls, or security checks fail.
// LookupEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LocalCredentialStore) LookupEmail(ctx context.Context, tenantID, email string) (string, bool, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		if id, ok := t.byEmail[email]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

// LookupPhone describes the lookupphone operation and its observable behavior.
//
// LookupPhone may return an error when input validation, dependency calls, or security checks fail.
// LookupPhone does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LocalCredentialStore) LookupPhone(ctx context.Context, tenantID, phone string) (string, bool, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		if id, ok := t.byPhone[phone]; ok {
			return id, true, nil
		}
	}
	return "", false, nil
}

// RegisterUser describes the registeruser operation and its observable behavior.
//
// RegisterUser may return an error when input validation, dependency calls, or security checks fail.
// RegisterUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LocalCredentialStore) RegisterUser(ctx context.Context, tenantID, username, passwordHash string, profile map[string]string) (string, error) {
	_ = ctx

	if username == "" || passwordHash == "" {
		return "", errors.New("username and password hash required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID)
	if _, exists := t.byUsername[username]; exists {
		return "", ErrUserExists
	}

	user := &localUser{
		id:           uuid.NewString(),
		username:     username,
		passwordHash: passwordHash,
	}
	if profile != nil {
		user.profile = make(map[string]string, len(profile))
		for k, v := range profile {
			user.profile[k] = v
		}
		user.email = profile["email"]
		user.phone = profile["phone_number"]
	}

	t.users[user.id] = user
	t.byUsername[username] = user.id
	if user.email != "" {
		t.byEmail[user.email] = user.id
	}
	if user.phone != "" {
		t.byPhone[user.phone] = user.id
	}

	return user.id, nil
}

// UpdatePassword describes the updatepassword operation and its observable behavior.
//
// UpdatePassword may return an error when input validation, dependency calls, or security checks fail.
// UpdatePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LocalCredentialStore) UpdatePassword(ctx context.Context, tenantID, userID, passwordHash string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return errors.New("unknown user")
	}
	user, ok := t.users[userID]
	if !ok {
		return errors.New("unknown user")
	}
	user.passwordHash = passwordHash
	return nil
}

// CreateUser registers a user directly with a plaintext password, hashing it
// through the store's Argon2id configuration. Convenience for seeding.
func (s *LocalCredentialStore) CreateUser(tenantID, username, secret string, profile map[string]string) (string, error) {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", err
	}
	return s.RegisterUser(context.Background(), tenantID, username, hash, profile)
}

var _ CredentialStore = (*LocalCredentialStore)(nil)
