package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"binas/internal/binas"
	"binas/internal/config"
	"binas/internal/database"
	"binas/internal/directory"
	"binas/internal/register"
	"binas/internal/resolver"
	"binas/internal/station"
	"binas/internal/users"
)

func newServeCmd() *cobra.Command {
	var (
		cfg       = config.Default()
		endpoints string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the binas server",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := config.ParseEndpoints(endpoints)
			if err != nil {
				return err
			}
			cfg.Endpoints = records

			if err := cfg.Validate(); err != nil {
				return err
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "gRPC listen address")
	cmd.Flags().StringVar(&cfg.StationTemplate, "template", cfg.StationTemplate, "Station name template")
	cmd.Flags().IntVar(&cfg.Stations, "stations", cfg.Stations, "Number of stations replicating balances")
	cmd.Flags().IntVar(&cfg.InitialCredits, "credits", cfg.InitialCredits, "Credit new users start with")
	cmd.Flags().DurationVar(&cfg.ReplicaTimeout, "replica-timeout", cfg.ReplicaTimeout, "Timeout of each replica call")
	cmd.Flags().DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "Timeout of each station probe")
	cmd.Flags().BoolVar(&cfg.ReadRepair, "read-repair", cfg.ReadRepair, "Push the latest balance to stale stations after reads")
	cmd.Flags().BoolVar(&cfg.GlobalLock, "global-lock", cfg.GlobalLock, "Serialize every register operation")
	cmd.Flags().StringVar(&endpoints, "endpoints", "", "Static station directory (name1=addr1,name2=addr2)")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "db", "", "PostgreSQL connection URL for users and the station directory")
	cmd.Flags().StringVar(&cfg.TablePrefix, "table-prefix", cfg.TablePrefix, "Table prefix")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every call")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var (
		dir   directory.Directory
		store users.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		if err := database.Migrate(db, cfg.TablePrefix); err != nil {
			return err
		}

		dir = directory.NewPostgres(db, cfg.TablePrefix)
		store = users.NewPostgresStore(db, cfg.TablePrefix)
	} else {
		dir = directory.NewStatic(cfg.Endpoints...)
		store = users.NewMemoryStore()
	}

	replicas, err := register.NewReplicaSet(cfg.StationTemplate, cfg.Stations)
	if err != nil {
		return err
	}

	var regOpts = []register.Option{
		register.WithReplicaTimeout(cfg.ReplicaTimeout),
		register.WithLogger(logger.With("component", "register")),
	}
	if cfg.ReadRepair {
		regOpts = append(regOpts, register.WithReadRepair())
	}
	if cfg.GlobalLock {
		regOpts = append(regOpts, register.WithGlobalLock())
	}

	clients := station.NewClientManager()
	defer clients.Close()

	var (
		res = resolver.New(dir, clients.Endpoint, cfg.StationTemplate,
			resolver.WithProbeTimeout(cfg.ProbeTimeout),
			resolver.WithLogger(logger.With("component", "resolver")))
		reg     = register.New(replicas, res.Locator(), regOpts...)
		manager = binas.NewManager(store, reg, res,
			binas.WithInitialCredits(cfg.InitialCredits),
			binas.WithLogger(logger.With("component", "binas")))
		server = binas.NewGRPCServer(manager, logger)
	)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		server.GracefulStop()
	}()

	logger.Info("starting binas",
		"addr", lis.Addr().String(),
		"template", cfg.StationTemplate,
		"stations", cfg.Stations,
		"quorum", replicas.Quorum())

	if err := server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
