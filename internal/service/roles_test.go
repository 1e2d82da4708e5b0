package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	mocks "github.com/dhanmatrix/dhanmatrix/internal/mocks/auth"
)

type recordingSink struct {
	mu         sync.Mutex
	counts     map[string]int64
	errorTypes []string
	timings    int
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[name+"|"+tags["outcome"]] += value
	if et, ok := tags["error_type"]; ok {
		s.errorTypes = append(s.errorTypes, et)
	}
}

func (s *recordingSink) Gauge(string, float64, map[string]string) {}

func (s *recordingSink) Timing(string, time.Duration, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings++
}

func (s *recordingSink) count(outcome string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[metricRoleResolution+"|"+outcome]
}

type updateLog struct {
	mu      sync.Mutex
	updates []domainauth.RoleUpdate
	cacheCh chan struct{}
}

func newUpdateLog() *updateLog { return &updateLog{cacheCh: make(chan struct{}, 1)} }

func (l *updateLog) report(u domainauth.RoleUpdate) {
	l.mu.Lock()
	l.updates = append(l.updates, u)
	l.mu.Unlock()
	if u.Source == domainauth.SourceCache {
		l.cacheCh <- struct{}{}
	}
}

func (l *updateLog) all() []domainauth.RoleUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainauth.RoleUpdate(nil), l.updates...)
}

// recordingHandler keeps every record, including those from derived loggers.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) at(level slog.Level) []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []slog.Record
	for _, r := range h.records {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

var alice = domainauth.Principal{ID: "u-alice", Email: "alice@example.com"}

func membership(p domainauth.Principal) *model.AdminMembership {
	return &model.AdminMembership{UserID: p.ID, Email: p.Email, PromotedBy: model.PromotedByCLI}
}

func TestRoleResolver_SuperAdminSkipsLookups(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	sink := &recordingSink{}
	r := NewRoleResolver(RoleResolverOptions{
		SuperAdmins: mocks.StaticSuperAdmins{Emails: []string{"ALICE@example.com"}},
		Documents:   docs,
		Metrics:     sink,
	})
	log := newUpdateLog()

	role := r.Resolve(context.Background(), alice, log.report)

	assert.Equal(t, domainauth.RoleAdmin, role)
	assert.Equal(t, []domainauth.RoleUpdate{{Role: domainauth.RoleAdmin, Final: true, Source: domainauth.SourceOverride}}, log.all())
	assert.Zero(t, docs.CacheCalls())
	assert.Zero(t, docs.ServerCalls())
	assert.Equal(t, int64(1), sink.count("override"))
}

func TestRoleResolver_ServerOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		seed      func(*mocks.MemoryDocumentStore)
		want      domainauth.Role
		outcome   string
		errorType string
	}{
		{
			name:    "membership found",
			seed:    func(d *mocks.MemoryDocumentStore) { d.PutServer(model.CollectionAdmins, alice.ID, membership(alice)) },
			want:    domainauth.RoleAdmin,
			outcome: "server_admin",
		},
		{
			name:    "no membership",
			seed:    func(*mocks.MemoryDocumentStore) {},
			want:    domainauth.RoleUser,
			outcome: "server_user",
		},
		{
			name: "lookup error reads as not found",
			seed: func(d *mocks.MemoryDocumentStore) {
				d.ServerErr = apperrors.Network(errors.New("offline"), "unavailable")
			},
			want:      domainauth.RoleUser,
			outcome:   "server_error",
			errorType: "errors_errorstring",
		},
		{
			name: "permission denied reads as not found",
			seed: func(d *mocks.MemoryDocumentStore) {
				d.ServerErr = apperrors.PermissionDenied("missing or insufficient permissions")
			},
			want:      domainauth.RoleUser,
			outcome:   "server_error",
			errorType: "errors_apperror",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := mocks.NewMemoryDocumentStore()
			tt.seed(docs)
			sink := &recordingSink{}
			r := NewRoleResolver(RoleResolverOptions{Documents: docs, Metrics: sink, Timeout: time.Second})
			log := newUpdateLog()

			role := r.Resolve(context.Background(), alice, log.report)

			assert.Equal(t, tt.want, role)
			updates := log.all()
			require.NotEmpty(t, updates)
			last := updates[len(updates)-1]
			assert.True(t, last.Final)
			assert.Equal(t, domainauth.SourceServer, last.Source)
			assert.Equal(t, int64(1), sink.count(tt.outcome))
			assert.Equal(t, 1, sink.timings)
			if tt.errorType != "" {
				assert.Equal(t, []string{tt.errorType}, sink.errorTypes)
			} else {
				assert.Empty(t, sink.errorTypes)
			}
		})
	}
}

func TestRoleResolver_ProvisionalAdminFromCache(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	docs.PutCache(model.CollectionAdmins, alice.ID, membership(alice))
	docs.PutServer(model.CollectionAdmins, alice.ID, membership(alice))
	docs.ServerBlock = make(chan struct{})
	r := NewRoleResolver(RoleResolverOptions{Documents: docs, Timeout: time.Second})
	log := newUpdateLog()

	done := make(chan domainauth.Role, 1)
	go func() { done <- r.Resolve(context.Background(), alice, log.report) }()

	select {
	case <-log.cacheCh:
	case <-time.After(time.Second):
		t.Fatal("cache result was not reported")
	}
	assert.Equal(t, []domainauth.RoleUpdate{{Role: domainauth.RoleAdmin, Source: domainauth.SourceCache}}, log.all())

	close(docs.ServerBlock)
	assert.Equal(t, domainauth.RoleAdmin, <-done)
	updates := log.all()
	require.Len(t, updates, 2)
	assert.Equal(t, domainauth.RoleUpdate{Role: domainauth.RoleAdmin, Final: true, Source: domainauth.SourceServer}, updates[1])
}

func TestRoleResolver_ServerDisagreesWithCache(t *testing.T) {
	for _, revoke := range []bool{false, true} {
		name := "kept"
		want := domainauth.RoleAdmin
		if revoke {
			name = "revoked"
			want = domainauth.RoleUser
		}
		t.Run(name, func(t *testing.T) {
			docs := mocks.NewMemoryDocumentStore()
			docs.PutCache(model.CollectionAdmins, alice.ID, membership(alice))
			docs.ServerBlock = make(chan struct{})
			r := NewRoleResolver(RoleResolverOptions{Documents: docs, Timeout: time.Second, RevokeProvisionalAdmin: revoke})
			log := newUpdateLog()

			done := make(chan domainauth.Role, 1)
			go func() { done <- r.Resolve(context.Background(), alice, log.report) }()
			<-log.cacheCh
			close(docs.ServerBlock)

			assert.Equal(t, want, <-done)
		})
	}
}

func TestRoleResolver_TimeoutDefaultsToUser(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	docs.ServerBlock = make(chan struct{})
	defer close(docs.ServerBlock)
	sink := &recordingSink{}
	logs := &recordingHandler{}
	r := NewRoleResolver(RoleResolverOptions{
		Documents: docs,
		Timeout:   30 * time.Millisecond,
		Metrics:   sink,
		Logger:    slog.New(logs),
	})
	log := newUpdateLog()

	start := time.Now()
	role := r.Resolve(context.Background(), alice, log.report)

	assert.Equal(t, domainauth.RoleUser, role)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, []domainauth.RoleUpdate{{Role: domainauth.RoleUser, Final: true, Source: domainauth.SourceTimeout}}, log.all())
	assert.Equal(t, int64(1), sink.count("timeout"))

	warns := logs.at(slog.LevelWarn)
	require.Len(t, warns, 1)
	assert.Equal(t, "admin membership lookup timed out", warns[0].Message)
}

func TestRoleResolver_ResolvingTwiceGivesTheSameRole(t *testing.T) {
	tests := []struct {
		name        string
		superAdmins []string
		cached      bool
		onServer    bool
		want        domainauth.Role
	}{
		{name: "super-admin override", superAdmins: []string{alice.Email}, want: domainauth.RoleAdmin},
		{name: "server hit", onServer: true, want: domainauth.RoleAdmin},
		{name: "server miss", want: domainauth.RoleUser},
		{name: "cache hit then server hit", cached: true, onServer: true, want: domainauth.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := mocks.NewMemoryDocumentStore()
			if tt.cached {
				docs.PutCache(model.CollectionAdmins, alice.ID, membership(alice))
			}
			if tt.onServer {
				docs.PutServer(model.CollectionAdmins, alice.ID, membership(alice))
			}
			r := NewRoleResolver(RoleResolverOptions{
				SuperAdmins: mocks.StaticSuperAdmins{Emails: tt.superAdmins},
				Documents:   docs,
				Timeout:     time.Second,
			})

			first := r.ResolveRole(context.Background(), alice)
			second := r.ResolveRole(context.Background(), alice)

			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, second)
		})
	}
}

func TestRoleResolver_TimeoutKeepsProvisionalAdmin(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	docs.PutCache(model.CollectionAdmins, alice.ID, membership(alice))
	docs.ServerBlock = make(chan struct{})
	defer close(docs.ServerBlock)
	sink := &recordingSink{}
	r := NewRoleResolver(RoleResolverOptions{Documents: docs, Timeout: 50 * time.Millisecond, Metrics: sink})

	role := r.ResolveRole(context.Background(), alice)

	assert.Equal(t, domainauth.RoleAdmin, role)
	assert.Equal(t, int64(1), sink.count("cache_admin"))
}

func TestRoleResolver_CanceledAttemptReportsNothingFinal(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	docs.ServerBlock = make(chan struct{})
	defer close(docs.ServerBlock)
	r := NewRoleResolver(RoleResolverOptions{Documents: docs, Timeout: time.Second})
	log := newUpdateLog()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domainauth.Role, 1)
	go func() { done <- r.Resolve(ctx, alice, log.report) }()
	cancel()

	select {
	case role := <-done:
		assert.Equal(t, domainauth.RoleUnresolved, role)
	case <-time.After(time.Second):
		t.Fatal("resolve did not return after cancel")
	}
	for _, u := range log.all() {
		assert.False(t, u.Final)
	}
}

func TestNewRoleResolver_DefaultTimeout(t *testing.T) {
	r := NewRoleResolver(RoleResolverOptions{Documents: mocks.NewMemoryDocumentStore()})
	assert.Equal(t, DefaultRoleLookupTimeout, r.timeout)
}
