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

	"github.com/eiannone/keyboard"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"binas/internal/config"
	"binas/internal/database"
	"binas/internal/directory"
	"binas/internal/station"
)

var (
	stationID   string
	listenAddr  string
	publishAddr string
	x, y        int
	capacity    int
	returnPrize int
	dbURL       string
	tablePrefix string
	interactive bool
	verbose     bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "station",
		Short: "A binas station replica",
		Long: `Station serves a bina dock and one replica of every user's credit
balance over gRPC. With --db it publishes itself in the Postgres station
directory so binas servers can find it.`,
		RunE: runStation,
	}

	rootCmd.Flags().StringVar(&stationID, "id", config.DefaultStationTemplate+"1", "Station identifier")
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8081", "gRPC listen address")
	rootCmd.Flags().StringVar(&publishAddr, "publish-addr", "", "Address published in the directory (defaults to the bound address)")
	rootCmd.Flags().IntVar(&x, "x", 0, "X coordinate")
	rootCmd.Flags().IntVar(&y, "y", 0, "Y coordinate")
	rootCmd.Flags().IntVar(&capacity, "capacity", station.DefaultCapacity, "Number of docks")
	rootCmd.Flags().IntVar(&returnPrize, "prize", station.DefaultReturnPrize, "Credits paid for a return")
	rootCmd.Flags().StringVar(&dbURL, "db", "", "PostgreSQL connection URL of the station directory")
	rootCmd.Flags().StringVar(&tablePrefix, "table-prefix", config.DefaultTablePrefix, "Directory table prefix")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Control the station from the keyboard")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every call")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStation(cmd *cobra.Command, args []string) error {
	var (
		ctx   = context.Background()
		level = slog.LevelInfo
	)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := station.New(stationID, station.InitRequest{X: x, Y: y, Capacity: capacity, ReturnPrize: returnPrize})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	node := station.NewNode(st, listenAddr, station.WithNodeLogger(logger))
	var serveErr = make(chan error, 1)
	go func() { serveErr <- node.Serve(lis) }()

	dir, closeDir, err := publish(ctx, lis.Addr().String())
	if err != nil {
		node.Kill()
		return err
	}
	defer closeDir()

	// Leave the directory on the way out, except on crash.
	shutdown := func() {
		if dir != nil {
			if err := dir.Unpublish(ctx, stationID); err != nil {
				logger.Warn("failed to unpublish", "station", stationID, "error", err)
			}
		}
		node.Stop()
	}

	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if !interactive {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			shutdown()
			return nil
		case err := <-serveErr:
			return err
		}
	}

	return runInteractive(node, sigCh, serveErr, shutdown)
}

// publish registers the station in the Postgres directory when one is
// configured.
func publish(ctx context.Context, boundAddr string) (*directory.Postgres, func(), error) {
	if dbURL == "" {
		return nil, func() {}, nil
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := database.Migrate(db, tablePrefix); err != nil {
		db.Close()
		return nil, nil, err
	}

	addr := publishAddr
	if addr == "" {
		addr = boundAddr
	}

	dir := directory.NewPostgres(db, tablePrefix)
	if err := dir.Publish(ctx, directory.Record{Name: stationID, Addr: addr}); err != nil {
		db.Close()
		return nil, nil, err
	}
	return dir, func() { db.Close() }, nil
}

func runInteractive(node *station.Node, sigCh <-chan os.Signal, serveErr <-chan error, shutdown func()) error {
	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- char
		}
	}()

	printStatus(node)

	for {
		select {
		case key := <-keyCh:
			switch key {
			case 'i', 'I':
				printStatus(node)
			case 's', 'S':
				node.SetSilent(!node.Silent())
				printStatus(node)
			case 'c', 'C':
				fmt.Printf("\n\nCrashing immediately (no cleanup)...\n")
				os.Exit(1)
			case 'q', 'Q':
				fmt.Printf("\n\nShutting down gracefully...\n")
				shutdown()
				return nil
			}
		case err := <-serveErr:
			return err
		case sig := <-sigCh:
			fmt.Printf("\n\nReceived signal %v, crashing immediately (no cleanup)...\n", sig)
			os.Exit(1)
		}
	}
}

func printStatus(node *station.Node) {
	info := node.Station().Info()

	fmt.Print("\033[2J\033[H")
	fmt.Printf("Station %s on %s\n\n", info.ID, node.Addr())
	fmt.Printf("  location      (%d, %d)\n", info.X, info.Y)
	fmt.Printf("  binas         %d/%d\n", info.AvailableBinas, info.Capacity)
	fmt.Printf("  return prize  %d\n", info.ReturnPrize)
	fmt.Printf("  rented        %d\n", info.TotalGets)
	fmt.Printf("  returned      %d\n", info.TotalReturns)

	if node.Silent() {
		fmt.Printf("\nSILENCED: calls hang until the caller gives up\n")
	}

	fmt.Printf("\nControls:\n")
	fmt.Printf("  [i] Refresh\n")
	if node.Silent() {
		fmt.Printf("  [s] Answer calls again\n")
	} else {
		fmt.Printf("  [s] Stop answering calls\n")
	}
	fmt.Printf("  [c] Crash without cleanup\n")
	fmt.Printf("  [q] Quit gracefully\n")
}
