package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotto/internal/auth"
	"lotto/internal/config"
	"lotto/internal/draw"
	"lotto/internal/events"
	"lotto/internal/handlers"
	"lotto/internal/infra/postgres"
	"lotto/internal/ledger"
	"lotto/internal/logging"
	"lotto/internal/metrics"
	"lotto/internal/models"
	"lotto/internal/oracle"
	"lotto/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"
)

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Usage:  "path to the YAML configuration file",
	Value:  "config.yaml",
	EnvVar: "LOTTO_CONFIG",
}

func main() {
	app := cli.NewApp()
	app.Name = "lotto"
	app.Usage = "multi-round number-matching lottery service"
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API",
			Flags:  []cli.Flag{configFlag},
			Action: serve,
		},
		{
			Name:  "token",
			Usage: "issue an API token for an address",
			Flags: []cli.Flag{
				configFlag,
				cli.StringFlag{Name: "subject, s", Usage: "caller address carried by the token"},
				cli.DurationFlag{Name: "ttl", Usage: "token lifetime, defaults to auth.jwt.ttl_sec"},
			},
			Action: issueToken,
		},
		{
			Name:   "migrate",
			Usage:  "create the event journal table",
			Flags:  []cli.Flag{configFlag},
			Action: migrate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// randomness is the oracle side the service is bound to.
type randomness interface {
	draw.Oracle
	Bind(oracle.Fulfiller)
}

func serve(c *cli.Context) error {
	// 1. Load configuration and start logging
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	defer logging.Init("lotto", cfg.Server.LogFile, cfg.Server.Verbose, cfg.Server.LogMaxSizeMB).Close()

	// 2. Fund the ledger from genesis balances
	denom := ledger.Denomination{Decimals: cfg.Lottery.Decimals}
	book := ledger.NewBook(cfg.Ledger.Custody)
	for holder, amount := range cfg.Ledger.Genesis {
		tokens, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("genesis balance for %s: %w", holder, err)
		}
		if err := book.Credit(holder, denom.ToUnits(tokens)); err != nil {
			return fmt.Errorf("genesis balance for %s: %w", holder, err)
		}
		logger.Infof("Genesis: %s holds %s tokens", holder, tokens)
	}

	// 3. Pick the randomness source
	var (
		rnd      randomness
		callback *oracle.Callback
	)
	switch cfg.Oracle.Mode {
	case config.OracleCallback:
		callback = oracle.NewCallback()
		rnd = callback
	default:
		rnd = oracle.NewLocal(cfg.Oracle.Secret, cfg.OracleDelay())
	}

	// 4. Event sinks, with the Postgres journal when a DSN is configured
	bus := events.NewBus(events.LogSink{})
	var journal *postgres.Journal
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		journal = postgres.NewJournal(db)
		defer journal.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = journal.Migrate(ctx)
		cancel()
		if err != nil {
			return err
		}
		bus.Add(journal)
	}

	// 5. Initialize the Lottery Service and bind the oracle to it
	lotteryService := services.NewLotteryService(services.Options{
		Settings: models.Settings{
			LotterySize: cfg.Lottery.Size,
			MaxRange:    cfg.Lottery.MaxRange,
			Buckets:     cfg.Lottery.Buckets,
		},
		Oracle: rnd,
		Ledger: book,
		Auth:   auth.NewAdmins(cfg.Admins...),
		Bus:    bus,
	})
	rnd.Bind(lotteryService)

	// 6. Initialize the HTTP Handler
	opts := handlers.Options{
		Signer:        &auth.Signer{Secret: []byte(cfg.Auth.JWT.Secret), Issuer: cfg.Auth.JWT.Issuer, TTL: cfg.TokenTTL()},
		Callback:      callback,
		CallbackToken: cfg.Oracle.CallbackToken,
		Denomination:  denom,
	}
	if journal != nil {
		opts.Journal = journal
	}
	httpHandler := handlers.NewHTTPHandler(lotteryService, opts)

	// 7. Set up the Gin router
	if !cfg.Server.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestIDMiddleware(), metrics.GinMiddleware())
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// 8. Register public routes, then routes that need a caller token
	httpHandler.RegisterPublicRoutes(r)
	callerRoutes := r.Group("/")
	callerRoutes.Use(httpHandler.AuthMiddleware())
	httpHandler.RegisterCallerRoutes(callerRoutes)

	// 9. Run the server until interrupted
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on http://localhost:%d (oracle: %s)", cfg.Server.Port, cfg.Oracle.Mode)
		errc <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Infof("Received %s, shutting down", sig)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	if local, ok := rnd.(*oracle.Local); ok {
		local.Wait()
	}
	return nil
}

func issueToken(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	subject := c.String("subject")
	if subject == "" {
		return cli.NewExitError("--subject is required", 2)
	}
	ttl := cfg.TokenTTL()
	if c.IsSet("ttl") {
		ttl = c.Duration("ttl")
	}
	signer := &auth.Signer{Secret: []byte(cfg.Auth.JWT.Secret), Issuer: cfg.Auth.JWT.Issuer, TTL: ttl}
	token, err := signer.Issue(subject, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return cli.NewExitError("database.dsn or DATABASE_URL is required", 2)
	}
	db, err := postgres.Open(cfg.Database.DSN, 1)
	if err != nil {
		return err
	}
	journal := postgres.NewJournal(db)
	defer journal.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := journal.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("lottery_events is up to date")
	return nil
}
