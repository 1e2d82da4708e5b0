package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	obserrors "github.com/dhanmatrix/dhanmatrix/internal/observability/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/observability/statsd"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// DefaultRoleLookupTimeout bounds the authoritative membership read.
const DefaultRoleLookupTimeout = 10 * time.Second

const (
	metricRoleResolution         = "auth.role_resolution"
	metricRoleResolutionDuration = "auth.role_resolution.duration"
)

// RoleResolverOptions groups dependencies for RoleResolver.
type RoleResolverOptions struct {
	SuperAdmins ports.SuperAdminPolicy // optional
	Documents   ports.DocumentStore
	Timeout     time.Duration // DefaultRoleLookupTimeout when zero
	// RevokeProvisionalAdmin downgrades a cache-granted admin when the server has no record.
	RevokeProvisionalAdmin bool
	Metrics                statsd.Sink // optional
	Logger                 *slog.Logger
}

// RoleResolver maps a principal to admin or user from the admins collection.
type RoleResolver struct {
	superAdmins ports.SuperAdminPolicy
	docs        ports.DocumentStore
	timeout     time.Duration
	revoke      bool
	metrics     statsd.Sink
	logger      *slog.Logger
}

var _ ports.RoleResolver = (*RoleResolver)(nil)

// NewRoleResolver constructs a RoleResolver.
func NewRoleResolver(opts RoleResolverOptions) *RoleResolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRoleLookupTimeout
	}
	return &RoleResolver{
		superAdmins: opts.SuperAdmins,
		docs:        opts.Documents,
		timeout:     timeout,
		revoke:      opts.RevokeProvisionalAdmin,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "role_resolver"),
	}
}

// ResolveRole returns the settled role for p. It never fails: lookup errors and timeouts
// settle to the least-privileged role unless the cache already granted admin.
func (r *RoleResolver) ResolveRole(ctx context.Context, p domainauth.Principal) domainauth.Role {
	return r.Resolve(ctx, p, nil)
}

type serverLookup struct {
	found bool
	err   error
}

// Resolve runs one resolution attempt, calling report for the provisional cache result and
// once more when the attempt settles. When ctx ends first nothing final is reported and
// RoleUnresolved is returned.
func (r *RoleResolver) Resolve(
	ctx context.Context,
	p domainauth.Principal,
	report func(domainauth.RoleUpdate),
) domainauth.Role {
	if report == nil {
		report = func(domainauth.RoleUpdate) {}
	}
	started := time.Now()
	res := domainauth.NewResolution(r.revoke)

	if r.superAdmins != nil && r.superAdmins.IsSuperAdmin(p) {
		upd, _ := res.ObserveOverride()
		report(upd)
		r.record("override", started, nil)
		return upd.Role
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cacheCh := make(chan bool, 1)
	serverCh := make(chan serverLookup, 1)
	go func() { cacheCh <- r.readCache(lookupCtx, p.ID) }()
	go func() { serverCh <- r.readServer(lookupCtx, p.ID) }()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	for {
		select {
		case found := <-cacheCh:
			cacheCh = nil
			if upd, ok := res.ObserveCache(found); ok {
				report(upd)
			}

		case lookup := <-serverCh:
			if ctx.Err() != nil {
				return domainauth.RoleUnresolved
			}
			provisional := res.State() == domainauth.ResolutionProvisionalAdmin
			upd, _ := res.ObserveServer(lookup.found)
			outcome := "server_user"
			switch {
			case lookup.err != nil:
				outcome = "server_error"
				r.logger.Warn("admin membership lookup failed; treating as not found",
					"user_id", p.ID, "error", lookup.err)
			case lookup.found:
				outcome = "server_admin"
			case provisional:
				r.logger.Warn("server has no admin membership for a cache-granted admin",
					"user_id", p.ID, "revoked", upd.Role != domainauth.RoleAdmin)
			}
			report(upd)
			r.record(outcome, started, lookup.err)
			return upd.Role

		case <-timer.C:
			provisional := res.State() == domainauth.ResolutionProvisionalAdmin
			upd, _ := res.ObserveTimeout()
			outcome := "timeout"
			if provisional {
				outcome = "cache_admin"
			}
			r.logger.Warn("admin membership lookup timed out",
				"user_id", p.ID, "timeout", r.timeout, "role", upd.Role)
			report(upd)
			r.record(outcome, started, nil)
			return upd.Role

		case <-ctx.Done():
			return domainauth.RoleUnresolved
		}
	}
}

func (r *RoleResolver) readCache(ctx context.Context, userID string) bool {
	_, err := r.docs.GetFromCache(ctx, model.CollectionAdmins, userID)
	if err == nil {
		return true
	}
	if !errors.Is(err, ports.ErrDocumentNotFound) && ctx.Err() == nil {
		r.logger.Debug("admin membership cache read failed", "user_id", userID, "error", err)
	}
	return false
}

func (r *RoleResolver) readServer(ctx context.Context, userID string) serverLookup {
	_, err := r.docs.GetFromServer(ctx, model.CollectionAdmins, userID)
	switch {
	case err == nil:
		return serverLookup{found: true}
	case errors.Is(err, ports.ErrDocumentNotFound):
		return serverLookup{}
	default:
		return serverLookup{err: err}
	}
}

func (r *RoleResolver) record(outcome string, started time.Time, err error) {
	if r.metrics == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	if err != nil {
		tags["error_type"] = obserrors.Classify(err)
	}
	r.metrics.Count(metricRoleResolution, 1, tags)
	r.metrics.Timing(metricRoleResolutionDuration, time.Since(started), tags)
}
