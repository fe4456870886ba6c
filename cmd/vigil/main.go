package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fedimod/vigil/cachestore"
	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "vigil",
		Usage:   "automated moderation daemon for federated discussion platforms",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "platform-host",
			Usage:   "base URL of the platform instance to moderate",
			Value:   "http://localhost:8536",
			EnvVars: []string{"VIGIL_PLATFORM_HOST"},
		},
		&cli.StringFlag{
			Name:    "platform-token",
			Usage:   "API token for the bot account",
			EnvVars: []string{"VIGIL_PLATFORM_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "platform-rate-limit",
			Usage:   "max requests per second to the platform API",
			Value:   10,
			EnvVars: []string{"VIGIL_PLATFORM_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/vigil/vigil.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "admin-actor",
			Usage:   "actor URL of the operator account, granted the admin role at startup",
			EnvVars: []string{"VIGIL_ADMIN_ACTOR"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin API",
			Value:   ":3984",
			EnvVars: []string{"VIGIL_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":3985",
			EnvVars: []string{"VIGIL_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; empty uses in-process caches",
			EnvVars: []string{"VIGIL_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			EnvVars: []string{"VIGIL_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "discord-webhook-url",
			EnvVars: []string{"VIGIL_DISCORD_WEBHOOK_URL"},
		},
		&cli.Int64Flag{
			Name:    "governance-community",
			Usage:   "community ID polled for governance vote threads; 0 disables detection",
			EnvVars: []string{"VIGIL_GOVERNANCE_COMMUNITY"},
		},
		&cli.DurationFlag{
			Name:    "scan-interval",
			Value:   30 * time.Second,
			EnvVars: []string{"VIGIL_SCAN_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "governance-interval",
			Value:   15 * time.Minute,
			EnvVars: []string{"VIGIL_GOVERNANCE_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "seen-gc-interval",
			Value:   time.Hour,
			EnvVars: []string{"VIGIL_SEEN_GC_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "seen-retention",
			Usage:   "how long seen markers are kept before garbage collection",
			Value:   7 * 24 * time.Hour,
			EnvVars: []string{"VIGIL_SEEN_RETENTION"},
		},
		&cli.StringSliceFlag{
			Name:    "trusted-tiers",
			Usage:   "donation tiers granting trusted standing",
			EnvVars: []string{"VIGIL_TRUSTED_TIERS"},
		},
		&cli.StringSliceFlag{
			Name:    "known-tiers",
			Usage:   "donation tiers granting known standing (filter bypass)",
			EnvVars: []string{"VIGIL_KNOWN_TIERS"},
		},
		&cli.StringSliceFlag{
			Name:    "voting-tiers",
			Usage:   "donation tiers granting voting rights",
			EnvVars: []string{"VIGIL_VOTING_TIERS"},
		},
		&cli.StringSliceFlag{
			Name:    "voting-tags",
			Usage:   "tag keys granting voting rights (eg vouched)",
			Value:   cli.NewStringSlice("vouched"),
			EnvVars: []string{"VIGIL_VOTING_TAGS"},
		},
		&cli.IntFlag{
			Name:    "vouches-per-user",
			Value:   2,
			EnvVars: []string{"VIGIL_VOUCHES_PER_USER"},
		},
		&cli.StringFlag{
			Name:    "admin-flair",
			Usage:   "flair markdown shown next to site admin votes",
			EnvVars: []string{"VIGIL_ADMIN_FLAIR"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := store.Open(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return fmt.Errorf("setting up database: %w", err)
		}

		client := platform.NewHTTPClient(
			cctx.String("platform-host"),
			cctx.String("platform-token"),
			cctx.Int("platform-rate-limit"),
			logger,
		)

		var notifier notify.Notifier = notify.Null{}
		var channels notify.Multi
		if url := cctx.String("slack-webhook-url"); url != "" {
			channels = append(channels, notify.NewWebhookNotifier("slack", url, logger))
		}
		if url := cctx.String("discord-webhook-url"); url != "" {
			channels = append(channels, notify.NewWebhookNotifier("discord", url, logger))
		}
		if len(channels) > 0 {
			notifier = channels
		}

		var cache cachestore.CacheStore
		if redisURL := cctx.String("redis-url"); redisURL != "" {
			cache, err = cachestore.NewRedisCacheStore(redisURL, 30*time.Minute)
			if err != nil {
				return fmt.Errorf("initializing redis cachestore: %w", err)
			}
		} else {
			cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
		}

		usvc := users.NewService(db, client, users.Config{
			TrustedTiers:   cctx.StringSlice("trusted-tiers"),
			KnownTiers:     cctx.StringSlice("known-tiers"),
			VotingTiers:    cctx.StringSlice("voting-tiers"),
			VotingTags:     cctx.StringSlice("voting-tags"),
			VouchesPerUser: cctx.Int("vouches-per-user"),
			AdminFlair:     cctx.String("admin-flair"),
		}, logger)

		if admin := cctx.String("admin-actor"); admin != "" {
			if err := usvc.EnsureAdmin(ctx, admin); err != nil {
				return fmt.Errorf("ensuring admin account: %w", err)
			}
		}

		srv := NewServer(db, client, usvc, cache, notifier, Config{
			Logger:              logger,
			GovernanceCommunity: cctx.Int64("governance-community"),
			ScanInterval:        cctx.Duration("scan-interval"),
			GovernanceInterval:  cctx.Duration("governance-interval"),
			SeenGCInterval:      cctx.Duration("seen-gc-interval"),
			SeenRetention:       cctx.Duration("seen-retention"),
		})

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()
		go func() {
			if err := srv.RunAPI(cctx.String("bind")); err != nil {
				slog.Error("failed to start admin API", "error", err)
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running moderation daemon: %w", err)
		}
		return nil
	},
}
