// Package auth holds hand-written in-memory doubles for the auth ports.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider          = (*MockAuthProvider)(nil)
	_ ports.SessionStore          = (*MemorySessionStore)(nil)
	_ ports.SuperAdminPolicy      = (*StaticSuperAdmins)(nil)
	_ ports.DocumentStore         = (*MemoryDocumentStore)(nil)
	_ ports.DocumentWriter        = (*MemoryDocumentStore)(nil)
	_ ports.PasswordAuthenticator = (*FakePasswordAuthenticator)(nil)
	_ ports.SessionSource         = (*ManualSessionSource)(nil)
	_ ports.SessionHintStore      = (*MemoryHintStore)(nil)
)

// MockAuthProvider is a scripted identity provider. Begin hands out numbered state and
// nonce values; Exchange accepts any code whose nonce was issued by Begin.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	issued    int
	nonces    map[string]bool
	exchanges []ports.ExchangeInput
}

const mockIdPURL = "https://mock-idp/auth"

// NewMockAuthProvider returns a provider that signs everyone in as the same investor.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: mockIdPURL,
		DefaultUser: domainauth.Identity{
			UserID:      "mock-user-1",
			Email:       "mock.user@example.com",
			DisplayName: "Mock User",
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	state := fmt.Sprintf("%s-%d", orDefault(m.StatePrefix, "state"), m.issued)
	nonce := fmt.Sprintf("%s-%d", orDefault(m.NoncePrefix, "nonce"), m.issued)
	if m.nonces == nil {
		m.nonces = make(map[string]bool)
	}
	m.nonces[nonce] = true
	return orDefault(m.AuthURL, mockIdPURL), state, nonce, nil
}

// Exchange fails for provider errors and for nonces Begin never issued.
func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, in)
	known := m.nonces[in.Nonce]
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if in.ProviderError != "" {
		return domainauth.Identity{}, fmt.Errorf("provider returned %q", in.ProviderError)
	}
	if !known {
		return domainauth.Identity{}, fmt.Errorf("nonce %q was not issued", in.Nonce)
	}
	user := m.DefaultUser
	if user.UserID == "" {
		user = NewMockAuthProvider().DefaultUser
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// Exchanges returns every Exchange input in call order.
func (m *MockAuthProvider) Exchanges() []ports.ExchangeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.exchanges)
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// StaticSuperAdmins matches principals by case-insensitive email.
type StaticSuperAdmins struct {
	Emails []string
}

func (s StaticSuperAdmins) IsSuperAdmin(p domainauth.Principal) bool {
	email := p.NormalizedEmail()
	if email == "" {
		return false
	}
	for _, e := range s.Emails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// MemoryDocumentStore keeps separate cache and server tiers in memory.
// ServerBlock, when set, holds every server read until it is closed or the context ends.
type MemoryDocumentStore struct {
	ServerDelay time.Duration
	ServerErr   error
	ServerBlock chan struct{}
	CacheErr    error
	WriteErr    error

	mu          sync.Mutex
	cache       map[string]model.Document
	server      map[string]model.Document
	serverCalls int
	cacheCalls  int
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		cache:  make(map[string]model.Document),
		server: make(map[string]model.Document),
	}
}

func docKey(collection, key string) string { return collection + "/" + key }

func encodeDoc(collection, key string, v any) model.Document {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte("{}")
	}
	return model.Document{Collection: collection, Key: key, Data: raw, FetchedAt: time.Now()}
}

// PutCache seeds the cache tier.
func (m *MemoryDocumentStore) PutCache(collection, key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[docKey(collection, key)] = encodeDoc(collection, key, v)
}

// PutServer seeds the server tier.
func (m *MemoryDocumentStore) PutServer(collection, key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.server[docKey(collection, key)] = encodeDoc(collection, key, v)
}

// DeleteServer removes a record from the server tier only.
func (m *MemoryDocumentStore) DeleteServer(collection, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.server, docKey(collection, key))
}

// ServerCalls returns how many server reads were attempted.
func (m *MemoryDocumentStore) ServerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverCalls
}

// CacheCalls returns how many cache reads were attempted.
func (m *MemoryDocumentStore) CacheCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheCalls
}

func (m *MemoryDocumentStore) GetFromCache(_ context.Context, collection, key string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheCalls++
	if m.CacheErr != nil {
		return model.Document{}, m.CacheErr
	}
	doc, ok := m.cache[docKey(collection, key)]
	if !ok {
		return model.Document{}, ports.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *MemoryDocumentStore) GetFromServer(ctx context.Context, collection, key string) (model.Document, error) {
	m.mu.Lock()
	m.serverCalls++
	block, delay := m.ServerBlock, m.ServerDelay
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return model.Document{}, ctx.Err()
		}
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return model.Document{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ServerErr != nil {
		return model.Document{}, m.ServerErr
	}
	doc, ok := m.server[docKey(collection, key)]
	if !ok {
		return model.Document{}, ports.ErrDocumentNotFound
	}
	return doc, nil
}

// Set writes v to both tiers.
func (m *MemoryDocumentStore) Set(_ context.Context, collection, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	doc := encodeDoc(collection, key, v)
	m.server[docKey(collection, key)] = doc
	m.cache[docKey(collection, key)] = doc
	return nil
}

// Delete removes the record from both tiers.
func (m *MemoryDocumentStore) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	delete(m.server, docKey(collection, key))
	delete(m.cache, docKey(collection, key))
	return nil
}

// Has reports whether the server tier holds the record.
func (m *MemoryDocumentStore) Has(collection, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.server[docKey(collection, key)]
	return ok
}

// FakePasswordAuthenticator delegates to its func fields.
type FakePasswordAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error)
	EnrollFunc       func(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error)
}

func (f *FakePasswordAuthenticator) Authenticate(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error) {
	if f.AuthenticateFunc == nil {
		return domainauth.Identity{}, errors.New("authenticate not configured")
	}
	return f.AuthenticateFunc(ctx, in)
}

func (f *FakePasswordAuthenticator) Enroll(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error) {
	if f.EnrollFunc == nil {
		return domainauth.Identity{}, errors.New("enroll not configured")
	}
	return f.EnrollFunc(ctx, in)
}

// ManualSessionSource lets tests drive session-changed events by hand. Emit delivers
// synchronously on the caller's goroutine.
type ManualSessionSource struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(*domainauth.Principal)
}

// NewManualSessionSource creates a source with no subscribers.
func NewManualSessionSource() *ManualSessionSource {
	return &ManualSessionSource{subs: make(map[string]map[int]func(*domainauth.Principal))}
}

func (m *ManualSessionSource) OnSessionChanged(sessionID string, fn func(*domainauth.Principal)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[int]func(*domainauth.Principal))
	}
	m.subs[sessionID][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[sessionID], id)
	}
}

// Emit delivers p to every subscriber of sessionID.
func (m *ManualSessionSource) Emit(sessionID string, p *domainauth.Principal) {
	m.mu.Lock()
	fns := make([]func(*domainauth.Principal), 0, len(m.subs[sessionID]))
	for _, fn := range m.subs[sessionID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		var cp *domainauth.Principal
		if p != nil {
			v := *p
			cp = &v
		}
		fn(cp)
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (m *ManualSessionSource) Subscribers(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[sessionID])
}

// MemoryHintStore records every saved hint.
type MemoryHintStore struct {
	mu     sync.Mutex
	values []bool
}

func (m *MemoryHintStore) SaveHint(seen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = append(m.values, seen)
}

func (m *MemoryHintStore) LoadHint() (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.values) == 0 {
		return false, false
	}
	return m.values[len(m.values)-1], true
}

// History returns a copy of all saved values in order.
func (m *MemoryHintStore) History() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.values...)
}
