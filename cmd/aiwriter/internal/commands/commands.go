package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	queuemem "github.com/wmsyw/aiWriter-sub006/internal/queue/memory"
	queuepg "github.com/wmsyw/aiWriter-sub006/internal/queue/postgres"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	memorystore "github.com/wmsyw/aiWriter-sub006/internal/store/memory"
	postgresstore "github.com/wmsyw/aiWriter-sub006/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// PostgresFlags configures the shared connection pool.
type PostgresFlags struct {
	ConnString      string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	MaxConns        int32  `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32  `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32  `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32  `help:"maximum connection idle time in seconds" default:"1800"`
	AutoMigrate     bool   `help:"run database migrations on startup" default:"false" env:"AIWRITER_POSTGRES_AUTO_MIGRATE"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// StoreFlags selects and configures the persistence backend.
type StoreFlags struct {
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"AIWRITER_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	// MaxRetries is handed to the queue when tasks are enqueued.
	MaxRetries int `help:"max execution attempts per task" default:"3" env:"AIWRITER_TASK_MAX_RETRIES"`
}

// stores bundles everything a command may need, regardless of backend.
type stores struct {
	Jobs      store.JobStore
	Users     store.UserStore
	Sessions  store.SessionStore
	Templates store.TemplateStore
	Articles  store.ArticleStore
	Hooks     store.HookStore
	Audit     store.AuditStore

	Backend  queue.Backend
	Consumer queue.Consumer
	Debug    queue.DebugReporter

	close func()
}

// buildStores creates the store set for the configured backend. The caller
// must call close when done.
func buildStores(ctx context.Context, flags StoreFlags) (*stores, error) {
	switch flags.StoreType {
	case "postgres":
		if err := flags.Postgres.Validate(); err != nil {
			return nil, err
		}
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      flags.Postgres.ConnString,
			MaxConns:        flags.Postgres.MaxConns,
			MinConns:        flags.Postgres.MinConns,
			MaxConnLifetime: flags.Postgres.MaxConnLifetime,
			MaxConnIdleTime: flags.Postgres.MaxConnIdleTime,
			AutoMigrate:     flags.Postgres.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		backend := queuepg.New(pool, flags.MaxRetries)
		return &stores{
			Jobs:      postgresstore.NewJobStore(pool),
			Users:     postgresstore.NewUserStore(pool),
			Sessions:  postgresstore.NewSessionStore(pool),
			Templates: postgresstore.NewTemplateStore(pool),
			Articles:  postgresstore.NewArticleStore(pool),
			Hooks:     postgresstore.NewHookStore(pool),
			Audit:     postgresstore.NewAuditStore(pool),
			Backend:   backend,
			Consumer:  backend,
			Debug:     backend,
			close:     pool.Close,
		}, nil

	default:
		q := queuemem.New()
		return &stores{
			Jobs:      memorystore.NewJobStore(q),
			Users:     memorystore.NewUserStore(),
			Sessions:  memorystore.NewSessionStore(),
			Templates: memorystore.NewTemplateStore(),
			Articles:  memorystore.NewArticleStore(),
			Hooks:     memorystore.NewHookStore(),
			Audit:     memorystore.NewAuditStore(),
			Backend:   q,
			Consumer:  q,
			Debug:     q,
			close:     func() {},
		}, nil
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
