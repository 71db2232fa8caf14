package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Congdongdong03/wx-help-sub000/internal/config"
	"github.com/Congdongdong03/wx-help-sub000/internal/hub"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/mongo"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/postgres"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/sqlite"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// App bundles everything serve needs to run.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Hub    *hub.Hub
	Server *http.Server
}

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "wx-help-server",
		Short: "Marketplace chat server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
		},
		RunE: runServe,
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket server",
			RunE:  runServe,
		},
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Log.Info("server starting", "addr", app.Server.Addr, "store", app.Config.StoreDriver)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.Hub.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.Log.Info("shutting down", "online", app.Hub.Registry().Count())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownTimeout)
		defer cancel()
		return app.Server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the store schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch cfg.StoreDriver {
			case config.StorePostgres:
				return postgres.RunMigrations(cfg.PostgresURL)
			case config.StoreMongo:
				db, err := mongo.NewDB(cmd.Context(), cfg.MongoURL, cfg.MongoDatabase)
				if err != nil {
					return err
				}
				defer db.Client().Disconnect(context.Background())
				return mongo.EnsureIndexes(cmd.Context(), db)
			case config.StoreSQLite:
				db, err := sqlite.NewDB(cfg.SQLitePath)
				if err != nil {
					return err
				}
				return sqlite.Migrate(db)
			}
			return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
		},
	})

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migrate down is only supported for %s", config.StorePostgres)
			}
			return postgres.RollbackMigrations(cfg.PostgresURL, steps)
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(downCmd)

	return migrateCmd
}
