package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-auth-guard/config"
	"github.com/goliatone/go-auth-guard/middleware/bearer"
	"github.com/goliatone/go-auth-guard/middleware/origin"
	"github.com/goliatone/go-auth-guard/notify/slack"
	"github.com/goliatone/go-auth-guard/store/bunstore"
	"github.com/goliatone/go-auth-guard/store/mongostore"
	"github.com/goliatone/go-auth-guard/store/redisattempts"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
)

type App struct {
	config   *config.Config
	logger   *glog.BaseLogger
	auth     *auth.Authenticator
	attempts *redisattempts.Store
	srv      *fiber.App
}

func main() {
	configPath := flag.String("config", os.Getenv("AUTHGUARD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	app := &App{
		config: cfg,
		logger: auth.NewLogger(auth.LoggerOptions{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Name:   "app",
		}),
	}

	if cfg.Server.Debug {
		redacted := *cfg
		redacted.Auth.SigningKey = "********"
		redacted.Bootstrap.Password = "********"
		app.logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(redacted))
	}

	ctx := context.Background()

	if err := WithAuthenticator(ctx, app); err != nil {
		app.logger.Error("failed to initialize authenticator", "error", err)
		os.Exit(1)
	}

	WithHTTPServer(app)

	go func() {
		app.logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := app.srv.Listen(cfg.Server.Addr); err != nil {
			app.logger.Error("http server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())

	if err := app.Shutdown(); err != nil {
		app.logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}

// GetLogger returns a named child of the root logger
func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func WithAuthenticator(ctx context.Context, app *App) error {
	cfg := app.config

	connector, err := NewConnector(cfg)
	if err != nil {
		return err
	}

	hasher := auth.NewBcryptHasher(cfg.Auth.PasswordCost)

	bootstrap := auth.NewBootstrapper(auth.BootstrapAccount{
		Identity: cfg.Bootstrap.Username,
		Password: cfg.Bootstrap.Password,
		Role:     auth.RoleAdmin,
	}, hasher, app.GetLogger("auth:bootstrap"))

	guard := auth.NewConnectionGuard(connector,
		auth.WithConnectTimeout(cfg.Store.ConnectTimeout),
		auth.WithGuardLogger(app.GetLogger("auth:guard")),
		auth.WithOnConnect(bootstrap.Hook()),
	)

	tokens, err := auth.NewTokenService(cfg.Auth, auth.WithTokenLogger(app.GetLogger("auth:tokens")))
	if err != nil {
		return err
	}

	trackerOpts := []auth.AttemptTrackerOption{
		auth.WithLockThreshold(cfg.Lockout.Threshold),
		auth.WithLockoutWindow(cfg.Lockout.Window),
		auth.WithTrackerLogger(app.GetLogger("auth:attempts")),
	}
	if cfg.Lockout.Backend == config.BackendRedis {
		store, err := redisattempts.Open(ctx, redisattempts.Options{
			Addr:     cfg.Lockout.RedisAddr,
			Password: cfg.Lockout.RedisPassword,
			DB:       cfg.Lockout.RedisDB,
		})
		if err != nil {
			return err
		}
		app.attempts = store
		trackerOpts = append(trackerOpts, auth.WithAttemptStore(store))
	}

	var notifier auth.Notifier
	if n := slack.New(cfg.Notify.SlackWebhookURL, slack.WithThreshold(cfg.Lockout.Threshold)); n != nil {
		notifier = n
	} else {
		app.logger.Info("slack webhook not configured, security notifications disabled")
	}

	origins, err := auth.NewOriginGuard(cfg.CORS.AllowedOrigins)
	if err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(guard, tokens,
		auth.WithPasswordHasher(hasher),
		auth.WithAttemptTracker(auth.NewAttemptTracker(trackerOpts...)),
		auth.WithDispatcher(auth.NewDispatcher(notifier,
			auth.WithNotifyTimeout(cfg.Notify.Timeout),
			auth.WithDispatcherLogger(app.GetLogger("auth:notify")),
		)),
		auth.WithOriginGuard(origins),
		auth.WithAuthenticatorLogger(app.GetLogger("auth:authn")),
	)
	if err != nil {
		return err
	}

	app.auth = authenticator
	return nil
}

// NewConnector picks the storage collaborator for the configured driver
func NewConnector(cfg *config.Config) (auth.Connector, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		return mongostore.NewConnector(mongostore.Options{
			URI:                    cfg.Store.MongoURI,
			Database:               cfg.Store.MongoDatabase,
			Collection:             cfg.Store.MongoCollection,
			ConnectTimeout:         cfg.Store.ConnectTimeout,
			ServerSelectionTimeout: cfg.Store.ServerSelectionTimeout,
		})
	default:
		return bunstore.NewConnector(cfg.Store.SQLiteDSN), nil
	}
}

func WithHTTPServer(app *App) {
	srv := fiber.New(fiber.Config{
		AppName:               "authguard",
		DisableStartupMessage: true,
	})

	srv.Use(origin.New(origin.Config{
		Guard: origin.FromAuthenticator(app.auth),
	}))

	controller := auth.RegisterAuthRoutes(srv,
		auth.WithAuthenticator(app.auth),
		auth.WithControllerLogger(app.GetLogger("auth:http")),
		auth.WithControllerDebug(app.config.Server.Debug),
	)

	api := srv.Group("/api", bearer.New(bearer.Config{
		Authenticator: app.auth,
		Filter: func(c *fiber.Ctx) bool {
			return c.Path() == controller.Routes.Login || c.Path() == controller.Routes.Verify
		},
	}))

	api.Get("/me", func(c *fiber.Ctx) error {
		session, _ := bearer.GetSession(c, "")
		return c.JSON(fiber.Map{"success": true, "user": session})
	})

	app.srv = srv
}

// Shutdown stops accepting requests, drains notifications and closes the
// store connections.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.srv.ShutdownWithContext(ctx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}

	err := a.auth.Close(ctx)

	if a.attempts != nil {
		if cerr := a.attempts.Close(); cerr != nil {
			a.logger.Warn("closing attempt store", "error", cerr)
		}
	}

	return err
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
