package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/assessor"
	"github.com/programme-lv/assessor/internal/config"
	"github.com/programme-lv/assessor/internal/content"
	"github.com/programme-lv/assessor/internal/harness"
	"github.com/programme-lv/assessor/internal/isolate"
	"github.com/programme-lv/assessor/internal/logging"
	"github.com/programme-lv/assessor/internal/records"
	"github.com/programme-lv/assessor/internal/runner"
	"github.com/programme-lv/assessor/internal/session"
	"github.com/programme-lv/assessor/internal/session/redisstore"
	"github.com/urfave/cli/v3"
)

// app holds the configuration and the resources opened from it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if cmd.Bool("no-color") {
		cfg.Log.NoColor = true
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logging.New(os.Stderr, level, cfg.Log.NoColor)}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) runner() (runner.Runner, error) {
	sb := a.cfg.Sandbox
	switch sb.Runner {
	case "isolate":
		iso := isolate.New("isolate", sb.PoolSize)
		return runner.NewIsolateRunner(iso, sb.CompileTimeout.Duration, a.logger), nil
	default:
		if err := os.MkdirAll(sb.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create sandbox work dir: %w", err)
		}
		opts := []runner.ProcessRunnerOption{runner.WithCompileTimeout(sb.CompileTimeout.Duration)}
		if sb.NetworkIsolation {
			opts = append(opts, runner.WithNetworkIsolation())
		}
		return runner.NewProcessRunner(sb.WorkDir, a.logger, opts...), nil
	}
}

func (a *app) harnessConfig() harness.Config {
	hc := harness.DefaultConfig()
	hc.DefaultTimeLimit = a.cfg.Sandbox.DefaultTimeLimit.Duration
	hc.DefaultMemoryKiB = a.cfg.Sandbox.DefaultMemoryKiB
	hc.Grace = a.cfg.Sandbox.Grace.Duration
	hc.SystemInfo = harness.SystemInfo()
	return hc
}

// harness builds the grading harness over catalog; a nil catalog means
// the configured languages.
func (a *app) harness(catalog *runner.Catalog) (*harness.Harness, error) {
	if catalog == nil {
		var err error
		if catalog, err = a.cfg.Catalog(); err != nil {
			return nil, err
		}
	}
	r, err := a.runner()
	if err != nil {
		return nil, err
	}
	return harness.New(r, catalog, harness.NewPool(a.cfg.Sandbox.PoolSize), a.harnessConfig(), a.logger), nil
}

func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.cfg.AWS.Region)}
	if a.cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(a.cfg.AWS.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

func (a *app) content(ctx context.Context) (content.Store, error) {
	cc := a.cfg.Content
	var store content.Store
	if cc.S3Bucket != "" {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		store = content.NewS3Store(s3.NewFromConfig(awsCfg), cc.S3Bucket, cc.S3Prefix, a.logger)
		a.logger.Info("reading content from S3", "bucket", cc.S3Bucket, "prefix", cc.S3Prefix)
	} else {
		store = content.NewDirStore(cc.Dir)
		a.logger.Info("reading content from directory", "dir", cc.Dir)
	}
	if cc.CacheTTL.Duration > 0 {
		store = content.NewCached(store, cc.CacheTTL.Duration)
	}
	return store, nil
}

func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

func (a *app) sessionStore(ctx context.Context) (session.Store, error) {
	if a.cfg.Session.Store != "redis" {
		return session.NewMemoryStore(), nil
	}
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return redisstore.New(rdb, a.logger), nil
}

func (a *app) ledger(ctx context.Context) (records.Ledger, error) {
	if a.cfg.Postgres.DSN == "" {
		return records.Nop(), nil
	}
	pg, err := records.Open(ctx, a.cfg.Postgres.DSN, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}

func (a *app) service(ctx context.Context) (*assessor.Service, error) {
	h, err := a.harness(nil)
	if err != nil {
		return nil, err
	}
	store, err := a.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := a.content(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := a.ledger(ctx)
	if err != nil {
		return nil, err
	}
	m := session.NewMachine(store, a.logger)
	g := a.cfg.Grading
	return assessor.New(assessor.Deps{
		Harness:  h,
		Machine:  m,
		Content:  cs,
		Activity: activity.NewRecorder(m.Now),
		Ledger:   ledger,
		Logger:   a.logger,
	}, assessor.Config{
		GradingRetries:   g.Retries,
		IdleAbandonAfter: a.cfg.Session.IdleAbandonAfter.Duration,
		MaxCases:         g.MaxCases,
		MaxCodeBytes:     g.MaxCodeBytes,
	}), nil
}

var errNoQueue = errors.New("sqs.request_queue_url is not configured")
