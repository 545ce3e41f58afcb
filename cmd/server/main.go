package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Skufu/HeartGuard/internal/auth"
	"github.com/Skufu/HeartGuard/internal/config"
	"github.com/Skufu/HeartGuard/internal/logging"
	"github.com/Skufu/HeartGuard/internal/model"
	"github.com/Skufu/HeartGuard/internal/prediction"
	"github.com/Skufu/HeartGuard/internal/server"
	"github.com/Skufu/HeartGuard/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "heartguard",
		Short:        "Heart disease risk prediction server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(initDBCmd())
	root.AddCommand(predictCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the schema and seed the default doctor account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.EnableDB {
				return errors.New("initdb requires ENABLE_DB=true and DATABASE_URL")
			}
			logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			scheme, err := auth.ParseScheme(cfg.PasswordScheme)
			if err != nil {
				return err
			}

			ctx := contextOrBackground(cmd.Context())
			_, _, closeFn, err := openStore(ctx, cfg, scheme)
			if err != nil {
				return err
			}
			defer closeFn()

			logger.Info().Msg("schema ready and default doctor seeded")
			fmt.Fprintln(cmd.OutOrStdout(), "database initialized")
			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a JSON payload offline without recording it",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			modelPath, _ := cmd.Flags().GetString("model")
			if modelPath == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				modelPath = cfg.ModelPath
			}

			payload, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			classifier, err := model.Load(modelPath)
			if err != nil {
				return err
			}

			out, err := prediction.NewService(classifier, nil).Predict(contextOrBackground(cmd.Context()), payload)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(out.Result)
		},
	}
	cmd.Flags().String("file", "-", "payload file, or - for stdin")
	cmd.Flags().String("model", "", "model artifact (defaults to MODEL_PATH)")
	return cmd
}

func runServer(ctx context.Context) error {
	ctx = contextOrBackground(ctx)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	gin.SetMode(cfg.GinMode)
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	scheme, err := auth.ParseScheme(cfg.PasswordScheme)
	if err != nil {
		return err
	}
	if scheme.Name() == auth.SchemePlaintext {
		logger.Warn().Msg("passwords are stored in plaintext; set PASSWORD_SCHEME=bcrypt for real deployments")
	}

	// A missing model leaves the server up; /predict_api and /readyz report it.
	classifier, err := model.Load(cfg.ModelPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.ModelPath).Msg("model load failed")
		classifier = nil
	} else {
		logger.Info().Str("path", cfg.ModelPath).Msg("model loaded")
	}

	st, db, closeFn, err := openStore(ctx, cfg, scheme)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer closeFn()

	svc := prediction.NewService(classifier, st, prediction.WithLogger(logger))
	router := server.NewRouter(server.Deps{
		Predictions:  svc,
		Store:        st,
		DB:           db,
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	srv := newHTTPServer(cfg.Port, router)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Str("port", cfg.Port).Bool("db", cfg.EnableDB).Msg("server listening")
	return waitForShutdown(srv, errCh, logger)
}

// openStore returns the Postgres store when the database is enabled and the
// in-memory store otherwise. Either way the schema exists and the default
// doctor is seeded on return.
func openStore(ctx context.Context, cfg *config.Config, scheme auth.PasswordScheme) (store.Store, server.HealthChecker, func(), error) {
	if !cfg.EnableDB {
		mem := store.NewMemoryStore(scheme)
		if err := mem.SeedDefaultDoctor(ctx); err != nil {
			return nil, nil, nil, err
		}
		return mem, nil, func() {}, nil
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	pg := store.NewPGStore(pool, scheme)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := pg.SeedDefaultDoctor(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return pg, pool, pool.Close, nil
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func waitForShutdown(server *http.Server, errCh <-chan error, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	logger.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}

func readPayload(stdin io.Reader, file string) (map[string]any, error) {
	r := stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var payload map[string]any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
