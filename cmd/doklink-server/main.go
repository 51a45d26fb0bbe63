package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/doklink/doklink/internal/config"
	"github.com/doklink/doklink/internal/domain/emergency"
	"github.com/doklink/doklink/internal/domain/hospital"
	"github.com/doklink/doklink/internal/domain/settlement"
	"github.com/doklink/doklink/internal/platform/auth"
	"github.com/doklink/doklink/internal/platform/cache"
	"github.com/doklink/doklink/internal/platform/db"
	"github.com/doklink/doklink/internal/platform/middleware"
	"github.com/doklink/doklink/internal/platform/payment"
)

// settlementFinalizer adapts settlement.Service to the narrower interface the
// booking lifecycle needs when a patient is discharged, avoiding a circular
// import between the emergency and settlement packages.
type settlementFinalizer struct {
	svc *settlement.Service
}

func (f *settlementFinalizer) FinalizeDischarge(ctx context.Context, bookingID uuid.UUID) error {
	_, err := f.svc.FinalizeDischarge(ctx, bookingID)
	return err
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "doklink-server",
		Short: "Emergency bed reservation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// sweepCmd runs a single reclaim pass over expired reservations and exits.
// Useful from cron when the long-running sweeper inside serve is not wanted.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue reservations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			_, _, _, sweeper := buildServices(cfg, pool, cache.NewMemoryStore(), logger)
			res, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d reservation(s), skipped %d, failed %d.\n",
				res.Expired, res.Skipped, res.Failed)
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildServices wires the repository, cache and gateway layers into the three
// domain services. The returned sweeper shares the emergency service so a
// sweep transition behaves exactly like a caller-driven one.
func buildServices(cfg *config.Config, pool *pgxpool.Pool, store cache.Store, logger zerolog.Logger) (*hospital.Service, *emergency.Service, *settlement.Service, *emergency.Sweeper) {
	hospitalRepo := hospital.NewRepoPG(pool)
	hospitalSvc := hospital.NewService(hospitalRepo, store,
		cfg.EmergencySpeedKmh, time.Duration(cfg.CacheTTLSeconds)*time.Second,
		logger.With().Str("component", "hospital").Logger())

	bookingRepo := emergency.NewBookingRepoPG(pool)
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	emergencySvc := emergency.NewService(bookingRepo, hospitalRepo, hospitalSvc, runTx,
		emergency.ServiceConfig{
			EmergencyNumber: cfg.EmergencyNumber,
			SpeedKmh:        cfg.EmergencySpeedKmh,
			TriggerRadiusKm: cfg.SearchRadiusKm,
		},
		logger.With().Str("component", "emergency").Logger())

	gateway := payment.NewRazorpay(cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentBaseURL)
	settlementSvc := settlement.NewService(settlement.NewRepoPG(pool), bookingRepo, gateway,
		logger.With().Str("component", "settlement").Logger())
	emergencySvc.SetSettlementFinalizer(&settlementFinalizer{svc: settlementSvc})

	sweeper := emergency.NewSweeper(emergencySvc, bookingRepo,
		logger.With().Str("component", "sweeper").Logger())
	return hospitalSvc, emergencySvc, settlementSvc, sweeper
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Availability cache: Redis when configured, in-process otherwise.
	var store cache.Store
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		store = cache.NewRedisStore(client)
		logger.Info().Msg("connected to redis")
	} else {
		store = cache.NewMemoryStore()
		logger.Info().Msg("using in-memory availability cache")
	}

	hospitalSvc, emergencySvc, settlementSvc, sweeper := buildServices(cfg, pool, store, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		if err := db.Health(c.Request().Context(), pool, 2*time.Second); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")
	hospital.NewHandler(hospitalSvc).RegisterRoutes(apiV1)
	emergency.NewHandler(emergencySvc).RegisterRoutes(apiV1)
	settlement.NewHandler(settlementSvc).RegisterRoutes(apiV1)

	// Background reclaim of expired reservations.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweeper.Run(sweepCtx, time.Duration(cfg.SweepIntervalSecs)*time.Second)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
