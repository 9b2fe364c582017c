package devserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/fentz26/taskdeck/internal/connectors"
	"github.com/fentz26/taskdeck/internal/connectors/localexec"
	"github.com/fentz26/taskdeck/internal/logging"
	"github.com/fentz26/taskdeck/internal/scheduler"
	"github.com/fentz26/taskdeck/internal/store"
	"github.com/rs/zerolog"
)

// Options configures a development backend.
type Options struct {
	DBPath    string
	Addr      string
	WorkDir   string
	Scheduler *scheduler.Config
	// Connector overrides the local executor.
	Connector connectors.Connector
	Logger    zerolog.Logger
}

// Backend bundles the store, the runner and the HTTP server of a development backend.
type Backend struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Service   *Service
	Server    *Server
}

// Open creates the database and wires every component. The runner is started;
// the HTTP server is not.
func Open(opts Options) (*Backend, error) {
	st, err := store.New(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	conn := opts.Connector
	if conn == nil {
		conn = localexec.New(opts.WorkDir)
	}
	sched := scheduler.New(st, conn, opts.Scheduler, logging.Component(opts.Logger, "scheduler"))
	if err := sched.Start(); err != nil {
		st.Close()
		return nil, fmt.Errorf("start scheduler: %w", err)
	}

	svc := NewService(st, sched, logging.Component(opts.Logger, "service"))
	return &Backend{
		Store:     st,
		Scheduler: sched,
		Service:   svc,
		Server:    NewServer(svc, opts.Addr, logging.Component(opts.Logger, "http")),
	}, nil
}

// Close shuts the server down, stops the runner and closes the store.
func (b *Backend) Close(ctx context.Context) error {
	err := b.Server.Shutdown(ctx)
	b.Scheduler.Stop()
	return errors.Join(err, b.Store.Close())
}
