package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/bookshelf/internal/bookinfo"
	"github.com/Clark-Hu/bookshelf/internal/config"
	httpserver "github.com/Clark-Hu/bookshelf/internal/http"
	"github.com/Clark-Hu/bookshelf/internal/i18n"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
	"github.com/Clark-Hu/bookshelf/internal/repository"
	"github.com/Clark-Hu/bookshelf/internal/store"
)

// backend is an opened store plus the repository over it.
type backend struct {
	repo   *repository.Repository
	health store.HealthChecker
	close  func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger, migrate bool) (*backend, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := store.OpenSQLite(dbCtx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			repo:   repository.NewSQLite(st),
			health: st,
			close:  func() { _ = st.Close() },
		}, nil
	default:
		st, err := store.New(dbCtx, cfg.DBURL, store.Options{
			MaxConns:               int32(cfg.DBMaxConns),
			MinConns:               int32(cfg.DBMinConns),
			MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
			MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
			ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
			StatementCacheCapacity: cfg.DBStatementCache,
			Logger:                 logger,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := st.Migrate(dbCtx); err != nil {
				st.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return &backend{repo: repository.New(st), health: st, close: st.Close}, nil
	}
}

func runServe(parent context.Context, autoMigrate bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	be, err := openBackend(ctx, cfg, logger, autoMigrate)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer be.close()

	policy, err := ledger.ParsePolicy(cfg.RatingDuplicatePolicy)
	if err != nil {
		return err
	}
	ratings, err := ledger.New(be.repo.Ratings, ledger.Options{
		Policy:      policy,
		MaxAttempts: cfg.RatingMaxAttempts,
		Logger:      logger.Named("ledger"),
	})
	if err != nil {
		return err
	}

	locale, err := i18n.ParseLocale(cfg.DefaultLocale)
	if err != nil {
		return err
	}
	translator, err := i18n.NewTranslator(locale)
	if err != nil {
		return err
	}

	var infoClient bookinfo.Client = bookinfo.NoopClient{}
	if cfg.BookInfoURL != "" {
		infoClient, err = bookinfo.NewHTTPClient(cfg.BookInfoURL, cfg.BookInfoAPIKey,
			time.Duration(cfg.BookInfoTimeoutSecs)*time.Second, logger)
		if err != nil {
			return fmt.Errorf("init bookinfo client: %w", err)
		}
	}

	server := httpserver.New(cfg, httpserver.Deps{
		Health:     be.health,
		Repo:       be.repo,
		Ledger:     ratings,
		BookInfo:   infoClient,
		Translator: translator,
		Logger:     logger,
	})

	logger.Info("starting",
		zap.String("driver", cfg.StoreDriver),
		zap.String("duplicate_policy", string(ratings.Policy())),
		zap.String("default_locale", string(translator.Default())),
	)

	// Start shuts the listener down itself once ctx is cancelled.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func runMigrate(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	be, err := openBackend(parent, cfg, logger, true)
	if err != nil {
		return err
	}
	be.close()
	logger.Info("migrations applied", zap.String("driver", cfg.StoreDriver))
	return nil
}
