package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/psyopd/survey/internal/config"
	"github.com/psyopd/survey/internal/domain/dashboard"
	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/portal"
	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/domain/survey"
	"github.com/psyopd/survey/internal/platform/auth"
	"github.com/psyopd/survey/internal/platform/db"
	"github.com/psyopd/survey/internal/platform/middleware"
	"github.com/psyopd/survey/internal/platform/reporting"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "survey-server",
		Short:        "Psychiatric survey API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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

	run := func(op func(ctx context.Context, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return op(cmd.Context(), db.NewMigrator(cfg.DatabaseURL))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database is at version %d.\n", v)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Status(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Down(ctx)
		}),
	})
	return cmd
}

// userCmd manages accounts directly against the database, without the
// admin token, for bootstrapping.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	create := func(use, short, idFlag, userType string) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, _ := cmd.Flags().GetString(idFlag)
				password, _ := cmd.Flags().GetString("password")
				if id == "" || password == "" {
					return fmt.Errorf("--%s and --password are required", idFlag)
				}
				return withIdentity(cmd.Context(), func(ctx context.Context, svc *identity.Service) error {
					u, err := svc.CreateUser(ctx, id, userType, password)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", u.UserType, u.UserID)
					return nil
				})
			},
		}
		c.Flags().String(idFlag, "", "Account identifier")
		c.Flags().String("password", "", "Initial password")
		return c
	}

	list := &cobra.Command{
		Use:   "list-patients",
		Short: "List active patient accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withIdentity(cmd.Context(), func(ctx context.Context, svc *identity.Service) error {
				users, total, err := svc.ListPatients(ctx, limit, offset)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PATIENT ID\tNAME\tCREATED")
				for _, u := range users {
					name := ""
					if u.DemographicInfo.Name != nil {
						name = *u.DemographicInfo.Name
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.UserID, name, u.CreatedAt.Format(time.DateOnly))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d patients\n", len(users), total)
				return nil
			})
		},
	}
	list.Flags().Int("limit", 50, "Maximum number of patients")
	list.Flags().Int("offset", 0, "Number of patients to skip")

	cmd.AddCommand(create("create-clinician", "Create a clinician account", "email", auth.UserTypeClinician))
	cmd.AddCommand(create("create-patient", "Create a patient account", "id", auth.UserTypePatient))
	cmd.AddCommand(list)
	return cmd
}

func withIdentity(ctx context.Context, fn func(ctx context.Context, svc *identity.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, identity.NewService(identity.NewUserRepoPG(pool), nil, cfg.AdminSecretKey, newLogger(cfg.Env)))
}

// handlers groups everything the router serves.
type handlers struct {
	identity  *identity.Handler
	survey    *survey.Handler
	portal    *portal.Handler
	dashboard *dashboard.Handler
	dbHealth  db.Pinger
}

func newEcho(cfg *config.Config, logger zerolog.Logger, authn *auth.Authenticator, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	if d := cfg.RequestTimeout(); d > 0 {
		e.Use(echomw.ContextTimeout(d))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"name":    cfg.ProjectName,
			"version": version,
			"status":  "running",
		})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(h.dbHealth))

	api := e.Group(cfg.APIPrefix)
	audit := middleware.Audit(logger, cfg.APIPrefix)

	// Public
	h.identity.RegisterAuthRoutes(api.Group("/auth"))
	h.survey.RegisterPublicRoutes(api, audit)

	// Authenticated
	protected := api.Group("", auth.JWTMiddleware(authn), audit)
	h.identity.RegisterRoutes(protected)
	h.survey.RegisterRoutes(protected)
	h.portal.RegisterRoutes(protected)
	h.dashboard.RegisterRoutes(protected)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	criteria, err := scoring.LoadCriteria(cfg.ScoringCriteriaPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load scoring criteria")
	}

	var model reporting.Model
	if cfg.GoogleAPIKey != "" {
		m, err := reporting.NewGeminiModel(ctx, cfg.GoogleAPIKey, cfg.LLMModel)
		if err != nil {
			logger.Warn().Err(err).Msg("llm unavailable, using template reports")
		} else {
			model = m
			logger.Info().Str("model", cfg.LLMModel).Msg("llm reports enabled")
		}
	}
	reports := reporting.NewGenerator(model, logger)

	authn := auth.NewAuthenticator(auth.JWTConfig{
		SigningKey: []byte(cfg.SecretKey),
		TTL:        cfg.TokenTTL(),
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
	})

	// Repositories
	userRepo := identity.NewUserRepoPG(pool)
	resultRepo := survey.NewResultRepoPG(pool)
	summaryCache := survey.NewSummaryCachePG(pool)

	// Services
	identitySvc := identity.NewService(userRepo, authn, cfg.AdminSecretKey, logger)
	surveySvc := survey.NewService(resultRepo, summaryCache, identitySvc, criteria, reports, logger).
		WithTransactions(db.Transactor(pool))
	portalSvc := portal.NewService(resultRepo, summaryCache, reports, logger)
	dashboardSvc := dashboard.NewService(dashboard.NewRepoPG(pool), resultRepo, identitySvc, surveySvc, criteria, logger)

	e := newEcho(cfg, logger, authn, handlers{
		identity:  identity.NewHandler(identitySvc, surveySvc),
		survey:    survey.NewHandler(surveySvc, authn),
		portal:    portal.NewHandler(portalSvc),
		dashboard: dashboard.NewHandler(dashboardSvc),
		dbHealth:  pool,
	})

	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := e.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
