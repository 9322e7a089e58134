package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/glswatch/config"
	"github.com/BearBump/glswatch/internal/broker/kafka"
	"github.com/BearBump/glswatch/internal/cache"
	"github.com/BearBump/glswatch/internal/cache/rediscache"
	"github.com/BearBump/glswatch/internal/gls"
	"github.com/BearBump/glswatch/internal/models"
	"github.com/BearBump/glswatch/internal/notify"
	"github.com/BearBump/glswatch/internal/services/shipments"
	"github.com/BearBump/glswatch/internal/services/watcher"
	"github.com/BearBump/glswatch/internal/storage/filestate"
	"github.com/BearBump/glswatch/internal/storage/pgstate"
)

// stateStore is what both the watcher and the CRUD service need from a
// backend; pgstate and filestate satisfy it.
type stateStore interface {
	Read(ctx context.Context) (models.State, error)
	Write(ctx context.Context, st models.State) error
}

type watcherFactories struct {
	newStore       func(cfg *config.Config) (st stateStore, closeFn func(), err error)
	newCache       func(cfg *config.Config) cache.BytesCache
	newNotifier    func(cfg *config.Config) notify.Notifier
	newRateLimiter func(cfg *config.Config) watcher.RateLimiter
	newCarrier     func(cfg *config.Config) watcher.Carrier
}

func defaultWatcherFactories() watcherFactories {
	return watcherFactories{
		newStore: func(cfg *config.Config) (stateStore, func(), error) {
			if cfg.Watcher.StateBackend == "file" {
				path := cfg.Watcher.StateFilePath
				if path == "" {
					path = "glswatch-state.json"
				}
				return filestate.New(path), nil, nil
			}
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgstate.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			if cfg.Redis.Host == "" {
				return nil
			}
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newNotifier: func(cfg *config.Config) notify.Notifier {
			if cfg.Watcher.NotifierMode == "kafka" {
				topic := cfg.Kafka.NotificationsTopicName
				if topic == "" {
					topic = "gls.notifications"
				}
				brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
				return notify.NewKafkaNotifier(kafka.NewProducer(brokers), topic)
			}
			return notify.NewLogNotifier()
		},
		newRateLimiter: func(cfg *config.Config) watcher.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCarrier: func(cfg *config.Config) watcher.Carrier {
			c := gls.New(cfg.Watcher.GLSBaseURL).WithCaller(cfg.Watcher.GLSCaller)
			if a, changed := aliasesFromConfig(cfg); changed {
				c = c.WithAliases(a)
			}
			return c
		},
	}
}

// aliasesFromConfig appends the configured extra field aliases to the
// built-in tables. Reports whether anything was actually added.
func aliasesFromConfig(cfg *config.Config) (gls.Aliases, bool) {
	a := gls.DefaultAliases()
	changed := false
	if len(cfg.Watcher.ExtraTextAliases) > 0 {
		a.Text = append(a.Text, cfg.Watcher.ExtraTextAliases...)
		changed = true
	}
	if len(cfg.Watcher.ExtraDateAliases) > 0 {
		a.Date = append(a.Date, cfg.Watcher.ExtraDateAliases...)
		changed = true
	}
	if len(cfg.Watcher.ExtraTimeAliases) > 0 {
		a.Time = append(a.Time, cfg.Watcher.ExtraTimeAliases...)
		changed = true
	}
	if len(cfg.Watcher.ExtraCityAliases) > 0 {
		a.City = append(a.City, cfg.Watcher.ExtraCityAliases...)
		changed = true
	}
	return a, changed
}

func RunWatcher(ctx context.Context, cfg *config.Config, f watcherFactories) error {
	concurrency := cfg.Watcher.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	rlPerMin := int64(cfg.Watcher.RateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 60
	}
	stateTTL := time.Duration(cfg.Watcher.StateCacheTTLSeconds) * time.Second
	if stateTTL <= 0 {
		stateTTL = 15 * time.Second
	}

	store, closeFn, err := f.newStore(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	svc := shipments.New(store, f.newCache(cfg), stateTTL)

	w := watcher.New(store, f.newCarrier(cfg), f.newNotifier(cfg), f.newRateLimiter(cfg)).
		WithSettings(0, concurrency, rlPerMin)

	go func() {
		err := runWatcherHTTPServer(ctx, watcherHTTPOpts{
			httpAddr:    cfg.Watcher.HTTPAddr,
			swaggerPath: cfg.Watcher.SwaggerPath,
			watcher:     w,
			shipments:   svc,
		})
		if err != nil && err != context.Canceled {
			slog.Error("http server", "error", err.Error())
		}
	}()

	return w.Run(ctx)
}
