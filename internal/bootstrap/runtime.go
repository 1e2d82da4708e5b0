package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dhanmatrix/dhanmatrix/config"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	contextSweepEvery      = time.Minute
)

// ServiceOrchestrationConfig contains everything Serve starts.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundService is a loop that runs until its context ends.
type backgroundService struct {
	name string
	run  func(context.Context) error
}

// buildBackgroundServices lists the loops the web process needs: the session event
// listener that feeds auth contexts, and the sweeper that closes idle ones.
func buildBackgroundServices(svcs ServiceContainer) []backgroundService {
	var out []backgroundService
	if svcs.Auth != nil {
		out = append(out, backgroundService{name: "session-events", run: svcs.Auth.Run})
	}
	if contexts := svcs.Contexts; contexts != nil {
		out = append(out, backgroundService{
			name: "auth-context-sweeper",
			run: func(ctx context.Context) error {
				contexts.Run(ctx, contextSweepEvery)
				return nil
			},
		})
	}
	return out
}

// closeContexts drops every live auth context and its session subscription.
func (c ServiceContainer) closeContexts() {
	if c.Contexts != nil {
		c.Contexts.Close()
	}
}

// Serve binds the HTTP listener, starts the background loops and blocks until ctx ends
// or one of them fails. A bind failure is returned before anything else starts.
func Serve(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config with AppConfig is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler, err := BuildHTTPHandler(&HTTPServerConfig{
		Config:      cfg.Config,
		Services:    cfg.Services,
		DB:          cfg.DB,
		RedisClient: cfg.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}
	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return runProcess(ctx, process{
		server:      newHTTPServer(handler),
		listener:    ln,
		background:  buildBackgroundServices(cfg.Services),
		closers:     []func(){cfg.Services.closeContexts},
		httpTimeout: cfg.Config.HTTP.ShutdownTimeout,
		logger:      logger,
	})
}

type process struct {
	server      *http.Server
	listener    net.Listener
	background  []backgroundService
	closers     []func()
	httpTimeout time.Duration
	logger      *slog.Logger
}

// runProcess stops in a fixed order once ctx ends or any member fails: drain HTTP so no
// request acquires an auth context, cancel the background loops, then run the closers.
func runProcess(ctx context.Context, p process) error {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoops()

	g.Go(func() error {
		p.logger.InfoContext(ctx, "http server listening", "addr", p.listener.Addr().String())
		if err := p.server.Serve(p.listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, svc := range p.background {
		g.Go(func() error {
			p.logger.InfoContext(ctx, "background service started", "service", svc.name)
			err := svc.run(loopCtx)
			p.logger.InfoContext(ctx, "background service stopped", "service", svc.name)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		p.logger.InfoContext(ctx, "shutting down")
		err := shutdownHTTP(p.server, p.httpTimeout)
		stopLoops()
		for _, c := range p.closers {
			c()
		}
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func shutdownHTTP(srv *http.Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
