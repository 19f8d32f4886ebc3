package idp

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Session.CookieSecret = bytes.Repeat([]byte("k"), 32)
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Events.Enabled = false
	return cfg
}

type mockProvider struct {
	mu      sync.Mutex
	configs map[string]*policy.Configuration
	calls   int
	err     error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		configs: make(map[string]*policy.Configuration),
	}
}

func (p *mockProvider) set(tenantID, flow string, cfg *policy.Configuration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[tenantID+"|"+flow] = cfg
}

func (p *mockProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *mockProvider) GetPolicyConfiguration(_ context.Context, tenantID, flow string) (*policy.Configuration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.configs[tenantID+"|"+flow], nil
}

type mockSender struct {
	mu        sync.Mutex
	codes     []string
	dests     []string
	templates []string
	fail      bool
}

func (s *mockSender) SendCode(_ context.Context, _, dest, code, template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("delivery backend down")
	}
	s.codes = append(s.codes, code)
	s.dests = append(s.dests, dest)
	s.templates = append(s.templates, template)
	return nil
}

func (s *mockSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func (s *mockSender) lastTemplate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.templates) == 0 {
		return ""
	}
	return s.templates[len(s.templates)-1]
}

func (s *mockSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// successCondition builds a one-clause DNF group requiring at least one
// success of the given method.
func successCondition(method string) []policy.Clause {
	return []policy.Clause{{
		Path:      "$." + method + ".success_count",
		Type:      "integer",
		Operation: "gte",
		Value:     1,
	}}
}

func testPolicyConfiguration() *policy.Configuration {
	return &policy.Configuration{
		ID:      "cfg-1",
		Flow:    "oauth",
		Enabled: true,
		Policies: []policy.Policy{{
			Description: "any single factor",
			Priority:    10,
			AvailableMethods: []string{
				MethodPassword,
				MethodEmail,
				MethodSMS,
				MethodWebAuthn,
				MethodInitialRegistration,
			},
			SuccessConditions: policy.SuccessConditions{
				AnyOf: [][]policy.Clause{
					successCondition(MethodPassword),
					successCondition(MethodEmail),
					successCondition(MethodSMS),
					successCondition(MethodWebAuthn),
					successCondition(MethodInitialRegistration),
				},
			},
		}},
	}
}

type testHarness struct {
	engine      *Engine
	provider    *mockProvider
	credentials *LocalCredentialStore
	email       *mockSender
	sms         *mockSender
	redis       *miniredis.Miniredis
	rdb         *redis.Client
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)

	provider := newMockProvider()
	provider.set("tenant-1", "oauth", testPolicyConfiguration())

	credentials, err := NewLocalCredentialStore(cfg.Password)
	if err != nil {
		t.Fatalf("NewLocalCredentialStore failed: %v", err)
	}

	email := &mockSender{}
	sms := &mockSender{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithConfigurationProvider(provider).
		WithCredentialStore(credentials).
		WithEmailSender(email).
		WithSMSSender(sms).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{
		engine:      engine,
		provider:    provider,
		credentials: credentials,
		email:       email,
		sms:         sms,
		redis:       mr,
		rdb:         rdb,
	}
}

func (h *testHarness) seedUser(t *testing.T, username, secret, email, phone string) string {
	t.Helper()

	profile := map[string]string{}
	if email != "" {
		profile["email"] = email
	}
	if phone != "" {
		profile["phone_number"] = phone
	}

	userID, err := h.credentials.CreateUser("tenant-1", username, secret, profile)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return userID
}

func (h *testHarness) newTransaction(t *testing.T, clientID string, scopes ...string) string {
	t.Helper()
	return h.newTransactionWithCookie(t, clientID, "", scopes...)
}

func (h *testHarness) newTransactionWithCookie(t *testing.T, clientID, cookie string, scopes ...string) string {
	t.Helper()

	tx, err := h.engine.CreateTransaction(context.Background(), "tenant-1", "oauth", "authz-1", cookie, RequestContext{
		ClientID: clientID,
		Scopes:   scopes,
	})
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	return tx.ID
}

func (h *testHarness) authenticatePassword(t *testing.T, txID, username, secret string) {
	t.Helper()

	result, err := h.engine.ExecuteInteraction(context.Background(), txID, InteractionPasswordAuthentication, map[string]any{
		"username": username,
		"password": secret,
	})
	if err != nil {
		t.Fatalf("password interaction failed: %v", err)
	}
	if result.Status != InteractionStatusSuccess {
		t.Fatalf("expected success status, got %s", result.Status)
	}
}
