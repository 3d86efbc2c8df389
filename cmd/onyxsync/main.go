package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/onyxos/onyxsync/internal/cache"
	"github.com/onyxos/onyxsync/internal/checks"
	"github.com/onyxos/onyxsync/internal/config"
	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/http_api"
	"github.com/onyxos/onyxsync/internal/notificator"
	"github.com/onyxos/onyxsync/internal/onyx"
	"github.com/onyxos/onyxsync/internal/queue"
	"github.com/onyxos/onyxsync/internal/repository"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/internal/syncer"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/internal/webhook"
	"github.com/onyxos/onyxsync/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "onyxsync",
		Usage: "Fanvue token lifecycle and incremental sync service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "fanvue-api-url", Usage: "Fanvue API base URL"},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the shared response cache"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the cron, webhook and OAuth endpoints",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "HTTP port"},
					&cli.BoolFlag{Name: "cron", Usage: "Run jobs on the in-process scheduler"},
				},
				Action: serve,
			},
			{
				Name:      "run",
				Usage:     "Run a single job and print its result",
				ArgsUsage: "<job>",
				Action:    runOnce,
			},
			{
				Name:   "check-credentials",
				Usage:  "Verify the Fanvue client credentials with a client_credentials grant",
				Action: checkCredentials,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("fanvue-api-url") {
		cfg.FanvueAPIURL = c.String("fanvue-api-url")
	}
	if c.IsSet("redis-addr") {
		cfg.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("cron") {
		cfg.CronEnabled = c.Bool("cron")
	}

	return cfg, cfg.Validate()
}

// app holds every wired component of the service.
type app struct {
	log      *logger.Logger
	db       *repository.PostgresDB
	onyx     *onyx.Onyx
	webhooks *webhook.Service
	connect  *tokens.Connector
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// OAuth connect states live up to ten minutes.
	var responseCache cache.Cache = cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
	var stateCache cache.Cache = cache.NewLRU(cfg.CacheSize, time.Hour)
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisToken, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		responseCache = cache.NewRedis(client, "onyxsync:")
		stateCache = responseCache
		log.Info("Using redis cache", "address", cfg.RedisAddr)
	}

	alerter, err := newAlerter(cfg, log)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.JobTimeout}
	client := fanvue.NewClient(fanvue.Options{
		BaseURL:           cfg.FanvueAPIURL,
		APIVersion:        cfg.FanvueAPIVersion,
		HTTPClient:        httpClient,
		LimitHeader:       cfg.RateLimitLimitHeader,
		RemainingHeader:   cfg.RateLimitRemainingHeader,
		ResetHeader:       cfg.RateLimitResetHeader,
		RequestsPerSecond: cfg.FanvueRequestsPerSecond,
		MaxRetries:        cfg.MaxRateLimitRetries,
		Cache:             responseCache,
		CacheTTL:          cfg.CacheTTL,
	}, log.With("component", "fanvue"))
	oauth := fanvue.NewOAuth(fanvue.OAuthConfig{
		ClientID:     cfg.FanvueClientID,
		ClientSecret: cfg.FanvueClientSecret,
		AuthURL:      cfg.FanvueAuthURL,
		TokenURL:     cfg.FanvueTokenURL,
		RedirectURL:  cfg.FanvueRedirectURL,
		Scopes:       cfg.FanvueScopes,
		HTTPClient:   httpClient,
	})

	refresher := tokens.NewRefresher(db, oauth, alerter, tokens.Options{ExpiryBuffer: cfg.TokenExpiryBuffer}, log.With("component", "tokens"))
	auth := tokens.NewAuthorizer(db, refresher, log.With("component", "tokens"))
	scheduler := syncer.NewScheduler(db, syncer.SchedulerOptions{
		Staleness: cfg.SyncStaleness,
		BatchSize: cfg.SyncBatchSize,
		ItemDelay: cfg.SyncItemDelay,
	}, log.With("component", "scheduler"))
	settings := syncer.FetchSettings{
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
		Overlap:  cfg.SyncOverlap,
	}
	syncLog := log.With("component", "syncer")

	processor := queue.NewProcessor(db, queue.NewFanvueSender(client, auth), queue.Options{
		BatchSize: cfg.QueueBatchSize,
		Retry:     retry.Policy{MaxAttempts: cfg.QueueMaxAttempts, BaseDelay: cfg.QueueRetryDelay},
		MinPause:  cfg.QueueMinPause,
		MaxPause:  cfg.QueueMaxPause,
	}, log.With("component", "queue"))

	services := onyx.Services{
		Refresher:    refresher,
		Transactions: syncer.NewTransactionSyncer(db, client, auth, scheduler, settings, syncLog),
		TrackingLink: syncer.NewTrackingLinkSyncer(db, client, auth, scheduler, settings, syncLog),
		Stats:        syncer.NewStatsSyncer(db, client, auth, scheduler, syncLog),
		Orphans:      syncer.NewOrphanRepairer(db, alerter, syncLog),
		Queue:        processor,
		Checks:       checks.NewChecker(db, alerter, cfg.LateShiftGrace, cfg.MissedPostGrace, log.With("component", "checks")),
	}

	return &app{
		log:      log,
		db:       db,
		onyx:     onyx.NewOnyx(db, services, cfg, log.With("component", "onyx")),
		webhooks: webhook.NewService(db, cfg.WebhookSecret, log.With("component", "webhook")),
		connect:  tokens.NewConnector(db, oauth, client, stateCache, cfg.TokenExpiryBuffer, log.With("component", "connect")),
	}, nil
}

func newAlerter(cfg *config.Config, log *logger.Logger) (notificator.Alerter, error) {
	if cfg.TelegramBotToken == "" {
		return notificator.NewNotificator(log, nil, nil), nil
	}
	tg, err := notificator.NewTelegramNotificator(log, cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram: %w", err)
	}
	return notificator.NewNotificator(log, tg, cfg.TelegramChatIDs), nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("Failed to close database", "error", err)
	}
	_ = a.log.Sync()
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	apiServer := http_api.NewHTTPServer(http_api.Deps{
		Jobs:              a.onyx,
		Webhooks:          a.webhooks,
		Connector:         a.connect,
		CronSecret:        cfg.CronSecret,
		ConnectedRedirect: cfg.ConnectedRedirectURL,
	}, cfg.APIPort, a.log.With("component", "http"))
	go apiServer.Start()

	if cfg.CronEnabled {
		if err := a.onyx.Start(); err != nil {
			return err
		}
		defer a.onyx.Stop()
	}

	<-ctx.Done()
	a.log.Info("Shutdown signal received")
	return apiServer.Shutdown()
}

func runOnce(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	result, runErr := a.onyx.RunJob(ctx, name)
	if result != nil {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(out))
	}
	return runErr
}

func checkCredentials(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	oauth := fanvue.NewOAuth(fanvue.OAuthConfig{
		ClientID:     cfg.FanvueClientID,
		ClientSecret: cfg.FanvueClientSecret,
		AuthURL:      cfg.FanvueAuthURL,
		TokenURL:     cfg.FanvueTokenURL,
		Scopes:       cfg.FanvueScopes,
	})
	tok, err := oauth.ClientToken(c.Context)
	if err != nil {
		return fmt.Errorf("failed to obtain client token: %w", err)
	}
	fmt.Printf("client credentials accepted, token expires at %s\n", tok.Expiry.Format(time.RFC3339))
	return nil
}
