// Command drl inspects and drives decaying rate limits from the shell.
//
//	drl --redis-addr localhost:6379 increment --scope api --max 100 --period 1h user-42
//	drl --config drl.yaml used --limit api user-42
//	drl --sqlite drl.db hammer --scope api --max 20 --period 1m --workers 8
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ryhazerus/drl"
	"github.com/ryhazerus/drl/internal/config"
	"github.com/ryhazerus/drl/store"
	drlredis "github.com/ryhazerus/drl/store/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "drl:", err)
		os.Exit(1)
	}
}

// runtime holds what the global flags resolve to. It is filled in by Before
// and shared by every command.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newApp() *cli.App {
	rt := &runtime{}
	return &cli.App{
		Name:  "drl",
		Usage: "decaying rate limiter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"DRL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "store driver: memory, sqlite or redis",
				EnvVars: []string{"DRL_STORE"},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address; implies --store redis",
				EnvVars: []string{"DRL_REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "sqlite",
				Usage:   "SQLite database path; implies --store sqlite",
				EnvVars: []string{"DRL_SQLITE_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"DRL_LOG_LEVEL"},
			},
		},
		Before:   rt.before,
		After:    rt.after,
		Commands: rt.commands(),
	}
}

func (rt *runtime) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if path := c.String("sqlite"); path != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.SQLite.Path = path
	}
	if addr := c.String("redis-addr"); addr != "" {
		cfg.Store.Driver = config.DriverRedis
		cfg.Store.Redis.Addr = addr
	}
	if driver := c.String("store"); driver != "" {
		cfg.Store.Driver = driver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = cfg

	level, err := zapcore.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	rt.logger, err = zcfg.Build()
	return err
}

func (rt *runtime) after(*cli.Context) error {
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return nil
}

// openStore connects the backend selected by the config.
func (rt *runtime) openStore() (store.Store, error) {
	sc := rt.cfg.Store
	switch sc.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		opts := []drlredis.Option{drlredis.WithLogger(rt.logger.Named("redis"))}
		if sc.Redis.Prefix != "" {
			opts = append(opts, drlredis.WithPrefix(sc.Redis.Prefix))
		}
		return drlredis.NewRedisStore(client, opts...), nil
	case config.DriverSQLite:
		return store.NewSQLiteStore(sc.SQLite.Path)
	default:
		return store.NewMemoryStore(), nil
	}
}

// limiter opens the store and wraps it in a Limiter. The caller closes it.
func (rt *runtime) limiter(opts ...drl.Option) (*drl.Limiter, error) {
	s, err := rt.openStore()
	if err != nil {
		return nil, err
	}
	rt.logger.Debug("store opened", zap.String("driver", rt.cfg.Store.Driver))
	return drl.New(append([]drl.Option{drl.WithStore(s), drl.WithLogger(rt.logger)}, opts...)...), nil
}
