package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/auth"
	"github.com/openexposure/gaen-server/internal/config"
	"github.com/openexposure/gaen-server/internal/export"
	"github.com/openexposure/gaen-server/internal/fakekeys"
	"github.com/openexposure/gaen-server/internal/insertmanager"
	"github.com/openexposure/gaen-server/internal/keyvault"
	"github.com/openexposure/gaen-server/internal/migrate"
	"github.com/openexposure/gaen-server/internal/repository/memory"
	"github.com/openexposure/gaen-server/internal/repository/postgres"
	"github.com/openexposure/gaen-server/internal/scheduler"
	"github.com/openexposure/gaen-server/internal/server/httpserver"
	"github.com/openexposure/gaen-server/internal/utc"
	"github.com/openexposure/gaen-server/internal/validation"
)

func main() {
	app := &cli.App{
		Name:  "gaen-server",
		Usage: "exposure notification key server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "database-dsn", Required: true, Usage: "PostgreSQL DSN"},
			&cli.StringFlag{Name: "gaen-key", Required: true, Usage: "PEM file with the export signing EC key"},
			&cli.StringFlag{Name: "next-day-jwt-key", Required: true, Usage: "PEM file with the next-day JWT signing EC key"},
			&cli.StringFlag{Name: "hash-filter-key", Usage: "PEM file with the response hashing EC key"},
			&cli.StringFlag{Name: "jwt-public-key", Required: true, Usage: "PEM file with the upload JWT verification public key"},
			&cli.DurationFlag{Name: "release-bucket-duration", Value: 2 * time.Hour},
			&cli.DurationFlag{Name: "request-time", Value: 1500 * time.Millisecond},
			&cli.DurationFlag{Name: "cache-control", Value: 5 * time.Minute},
			&cli.IntFlag{Name: "retention-days", Value: 14},
			&cli.IntFlag{Name: "key-size-bytes", Value: 16},
			&cli.BoolFlag{Name: "random-keys-enabled"},
			&cli.IntFlag{Name: "random-key-amount", Value: 10},
			&cli.StringFlag{Name: "region", Value: "es"},
			&cli.StringFlag{Name: "bundle-id", Value: "org.dpppt.ios.demo"},
			&cli.StringFlag{Name: "package-name", Value: "org.dpppt.android.demo"},
			&cli.StringFlag{Name: "key-version", Value: "v1"},
			&cli.StringFlag{Name: "key-identifier", Value: "214"},
			&cli.StringFlag{Name: "signature-algorithm", Value: "1.2.840.10045.4.3.2"},
			&cli.DurationFlag{Name: "time-skew", Value: 2 * time.Hour},
			&cli.StringFlag{Name: "origin-country", Value: "ES"},
			&cli.IntFlag{Name: "report-type", Value: 1},
			&cli.BoolFlag{Name: "android-0rp-modifier"},
			&cli.BoolFlag{Name: "ios-rplt144-modifier"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg := buildConfig(cliCtx)
	clock := utc.SystemClock{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cliCtx.String("database-dsn")
	if err := migrate.Up(ctx, dsn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	vault, err := loadVault(cliCtx)
	if err != nil {
		return err
	}
	jwtPub, err := loadJWTPublicKey(cliCtx.String("jwt-public-key"))
	if err != nil {
		return err
	}

	keyRepo := postgres.NewKeyRepo(db, cfg.ReleaseBucketDuration)
	redeemRepo := postgres.NewRedeemRepo(db)
	lockRepo := postgres.NewLockRepo(db)
	fakeRepo := memory.NewKeyRepo(cfg.ReleaseBucketDuration)

	utils := validation.NewUtils(cfg.GaenKeySizeBytes, cfg.Retention(), cfg.ReleaseBucketDuration)

	fakeSvc := fakekeys.New(fakekeys.Options{
		Store:         fakeRepo,
		Clock:         clock,
		Amount:        cfg.RandomKeyAmount,
		RetentionDays: cfg.RetentionDays,
		KeySizeBytes:  cfg.GaenKeySizeBytes,
		ReleaseBucket: cfg.ReleaseBucketDuration,
		CountryOrigin: cfg.EFGSCountryOrigin,
		ReportType:    cfg.EFGSReportType,
		Logger:        log,
	})

	var fakeReader httpserver.KeyReader
	if cfg.RandomKeysEnabled {
		if err := fakeSvc.Refresh(ctx); err != nil {
			return fmt.Errorf("fake keys: %w", err)
		}
		fakeReader = fakeRepo
	}

	gaenPair, err := vault.Get(keyvault.KeyGaen)
	if err != nil {
		return err
	}
	jwtPair, err := vault.Get(keyvault.KeyNextDayJWT)
	if err != nil {
		return err
	}

	controller := httpserver.NewController(httpserver.ControllerOptions{
		Config:    &cfg,
		Clock:     clock,
		Utils:     utils,
		Verifier:  auth.NewES256Verifier(jwtPub, clock, redeemRepo),
		Issuer:    auth.NewNextDayIssuer(jwtPair.Private, clock),
		Exposed:   insertmanager.NewExposedPipeline(keyRepo, utils, &cfg, log),
		NextDay:   insertmanager.NewNextDayPipeline(keyRepo, utils, &cfg, log),
		Keys:      keyRepo,
		FakeKeys:  fakeReader,
		Assembler: export.New(&cfg, gaenPair.Private),
		Logger:    log,
	})

	sched, err := scheduler.New(lockRepo, clock, log)
	if err != nil {
		return err
	}
	if err := sched.Schedule(scheduler.SpecCleanData,
		scheduler.CleanDataJob(keyRepo, redeemRepo, cfg.Retention(), clock, log)); err != nil {
		return err
	}
	if cfg.RandomKeysEnabled {
		if err := sched.Schedule(scheduler.SpecUpdateFakeKeys,
			scheduler.UpdateFakeKeysJob(fakeSvc)); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := httpserver.NewServer(cliCtx.String("listen-addr"), controller.Routes(), log)
	return srv.Run(ctx)
}

func buildConfig(cliCtx *cli.Context) config.Config {
	cfg := config.Default()
	cfg.ReleaseBucketDuration = cliCtx.Duration("release-bucket-duration")
	cfg.RequestTime = cliCtx.Duration("request-time")
	cfg.ExposedListCacheControl = cliCtx.Duration("cache-control")
	cfg.RetentionDays = cliCtx.Int("retention-days")
	cfg.GaenKeySizeBytes = cliCtx.Int("key-size-bytes")
	cfg.RandomKeysEnabled = cliCtx.Bool("random-keys-enabled")
	cfg.RandomKeyAmount = cliCtx.Int("random-key-amount")
	cfg.GaenRegion = cliCtx.String("region")
	cfg.BundleID = cliCtx.String("bundle-id")
	cfg.PackageName = cliCtx.String("package-name")
	cfg.KeyVersion = cliCtx.String("key-version")
	cfg.KeyIdentifier = cliCtx.String("key-identifier")
	cfg.GaenAlgorithm = cliCtx.String("signature-algorithm")
	cfg.TimeSkew = cliCtx.Duration("time-skew")
	cfg.EFGSCountryOrigin = cliCtx.String("origin-country")
	cfg.EFGSReportType = int32(cliCtx.Int("report-type"))
	cfg.Android0RPModifierEnabled = cliCtx.Bool("android-0rp-modifier")
	cfg.IOSRPLT144ModifierEnabled = cliCtx.Bool("ios-rplt144-modifier")
	return cfg
}

func loadVault(cliCtx *cli.Context) (*keyvault.Vault, error) {
	vault := keyvault.New()
	files := map[string]string{
		keyvault.KeyGaen:       cliCtx.String("gaen-key"),
		keyvault.KeyNextDayJWT: cliCtx.String("next-day-jwt-key"),
		keyvault.KeyHashFilter: cliCtx.String("hash-filter-key"),
	}
	for name, path := range files {
		if path == "" {
			continue
		}
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := vault.AddFromPEM(name, pemBytes); err != nil {
			return nil, err
		}
	}
	return vault, nil
}

func loadJWTPublicKey(path string) (pub *ecdsa.PublicKey, err error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jwt public key: %w", err)
	}
	return keyvault.ParseECPublicKeyPEM(pemBytes)
}
