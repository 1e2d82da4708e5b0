package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const defaultServerReadTimeout = 10 * time.Second

// DocumentStore serves the admins and users collections from two tiers: a Redis cache
// that may be stale, and Postgres as the authoritative server. Server reads write through
// to the cache; a server miss evicts the cached copy.
type DocumentStore struct {
	admins  core.AdminRepository
	users   core.UserRepository
	cache   core.CacheRepository
	ttl     time.Duration
	timeout time.Duration
	clock   TimeProvider
	logger  *slog.Logger
	group   singleflight.Group
}

// DocumentStoreOptions groups dependencies for NewDocumentStore.
// Cache may be nil, in which case every cache read misses.
type DocumentStoreOptions struct {
	Admins core.AdminRepository
	Users  core.UserRepository
	Cache  core.CacheRepository
	Config core.DocumentCacheConfig
	// ServerTimeout bounds a shared server read once callers are coalesced.
	ServerTimeout time.Duration
	TimeProvider  TimeProvider
	Logger        *slog.Logger
}

var (
	_ ports.DocumentStore  = (*DocumentStore)(nil)
	_ ports.DocumentWriter = (*DocumentStore)(nil)
)

// NewDocumentStore constructs a DocumentStore.
func NewDocumentStore(opts DocumentStoreOptions) *DocumentStore {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = core.DefaultDocumentCacheConfig().TTL
	}
	timeout := opts.ServerTimeout
	if timeout <= 0 {
		timeout = defaultServerReadTimeout
	}
	var clock TimeProvider = RealTimeProvider{}
	if opts.TimeProvider != nil {
		clock = opts.TimeProvider
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		admins:  opts.Admins,
		users:   opts.Users,
		cache:   opts.Cache,
		ttl:     ttl,
		timeout: timeout,
		clock:   clock,
		logger:  logger.With("component", "document_store"),
	}
}

// GetFromCache reads the cached copy only. A miss returns ports.ErrDocumentNotFound.
func (s *DocumentStore) GetFromCache(ctx context.Context, collection, key string) (model.Document, error) {
	if s.cache == nil {
		return model.Document{}, ports.ErrDocumentNotFound
	}
	raw, err := s.cache.Get(ctx, core.DocumentCacheKey(collection, key))
	if err != nil {
		return model.Document{}, err
	}
	if raw == nil {
		return model.Document{}, ports.ErrDocumentNotFound
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cached document",
			"collection", collection, "key", key, "error", err)
		return model.Document{}, ports.ErrDocumentNotFound
	}
	return doc, nil
}

// GetFromServer reads the authoritative copy. Concurrent reads of the same document share
// one query; each caller still returns as soon as its own ctx is done.
func (s *DocumentStore) GetFromServer(ctx context.Context, collection, key string) (model.Document, error) {
	ch := s.group.DoChan(collection+"/"+key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(fetchCtx, collection, key)
	})
	select {
	case <-ctx.Done():
		return model.Document{}, apperrors.Network(ctx.Err(), "document read abandoned")
	case res := <-ch:
		if res.Err != nil {
			return model.Document{}, res.Err
		}
		doc, ok := res.Val.(model.Document)
		if !ok {
			return model.Document{}, fmt.Errorf("unexpected document type %T", res.Val)
		}
		return doc, nil
	}
}

func (s *DocumentStore) fetch(ctx context.Context, collection, key string) (model.Document, error) {
	var (
		record any
		err    error
	)
	switch collection {
	case model.CollectionAdmins:
		record, err = s.admins.Get(ctx, key)
		if errors.Is(err, ErrAdminNotFound) {
			err = ports.ErrDocumentNotFound
		}
	case model.CollectionUsers:
		record, err = s.users.Get(ctx, key)
		if errors.Is(err, ErrUserNotFound) {
			err = ports.ErrDocumentNotFound
		}
	default:
		return model.Document{}, apperrors.Validationf("unknown collection %q", collection)
	}

	if errors.Is(err, ports.ErrDocumentNotFound) {
		s.evict(ctx, collection, key)
		return model.Document{}, ports.ErrDocumentNotFound
	}
	if err != nil {
		return model.Document{}, mapServerError(err)
	}

	doc, err := s.encode(collection, key, record)
	if err != nil {
		return model.Document{}, err
	}
	s.store(ctx, doc)
	return doc, nil
}

// mapServerError classifies a failed server read as a permission or network failure.
func mapServerError(err error) error {
	mapped := apperrors.MapDBError(err)
	if apperrors.IsPermissionDenied(mapped) || apperrors.IsNetwork(mapped) {
		return mapped
	}
	return apperrors.Network(err, "document server unavailable")
}

func (s *DocumentStore) encode(collection, key string, record any) (model.Document, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return model.Document{}, fmt.Errorf("marshal %s document: %w", collection, err)
	}
	return model.Document{
		Collection: collection,
		Key:        key,
		Data:       data,
		FetchedAt:  s.clock.Now().UTC(),
	}, nil
}

func (s *DocumentStore) store(ctx context.Context, doc model.Document) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, core.DocumentCacheKey(doc.Collection, doc.Key), raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "document cache write failed",
			"collection", doc.Collection, "key", doc.Key, "error", err)
	}
}

func (s *DocumentStore) evict(ctx context.Context, collection, key string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, core.DocumentCacheKey(collection, key)); err != nil {
		s.logger.WarnContext(ctx, "document cache evict failed",
			"collection", collection, "key", key, "error", err)
	}
}

// Set writes a record to the server and refreshes the cache. Admin values must be an
// AdminMembership and user values a UserProfile.
func (s *DocumentStore) Set(ctx context.Context, collection, key string, value any) error {
	var record any
	switch collection {
	case model.CollectionAdmins:
		m, ok := value.(*model.AdminMembership)
		if !ok || m == nil {
			return apperrors.Validation("admins documents must be *model.AdminMembership")
		}
		m.UserID = key
		saved, err := s.admins.Upsert(ctx, m)
		if err != nil {
			return err
		}
		record = saved
	case model.CollectionUsers:
		p, ok := value.(*model.UserProfile)
		if !ok || p == nil {
			return apperrors.Validation("users documents must be *model.UserProfile")
		}
		p.UserID = key
		saved, err := s.users.Upsert(ctx, p)
		if err != nil {
			return err
		}
		record = saved
	default:
		return apperrors.Validationf("unknown collection %q", collection)
	}

	doc, err := s.encode(collection, key, record)
	if err != nil {
		return err
	}
	s.store(ctx, doc)
	return nil
}

// Delete removes an admin membership and evicts its cached copy.
// Profiles are never deleted through the store.
func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	if collection != model.CollectionAdmins {
		return apperrors.Validationf("documents in %q cannot be deleted", collection)
	}
	if _, err := s.admins.Delete(ctx, key); err != nil {
		return err
	}
	s.evict(ctx, collection, key)
	return nil
}
