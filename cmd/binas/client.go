package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"binas/internal/binas"
	"binas/internal/rpc"
	"binas/internal/station"
)

var (
	serverAddr  string
	callTimeout time.Duration
)

func newClientCmds() []*cobra.Command {
	cmds := []*cobra.Command{
		{
			Use:   "create-user EMAIL",
			Short: "Register a user",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				account, err := c.CreateUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(account)
			}),
		},
		{
			Use:   "user EMAIL",
			Short: "Show a user and their credit",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				account, err := c.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(account)
			}),
		},
		{
			Use:   "rent STATION EMAIL",
			Short: "Rent a bina",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				return c.RentBina(ctx, args[0], args[1])
			}),
		},
		{
			Use:   "return STATION EMAIL",
			Short: "Return a bina",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				return c.ReturnBina(ctx, args[0], args[1])
			}),
		},
		{
			Use:   "station ID",
			Short: "Show a station",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				info, err := c.GetStation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(info)
			}),
		},
		{
			Use:   "init CREDITS",
			Short: "Set the credit new users start with",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				credits, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid credits %q: %w", args[0], err)
				}
				return c.Init(ctx, credits)
			}),
		},
		{
			Use:   "reset",
			Short: "Drop every user",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
				return c.Reset(ctx)
			}),
		},
		newInitStationCmd(),
		newConfigureCmd(),
	}

	for _, cmd := range cmds {
		cmd.Flags().StringVar(&serverAddr, "server", "localhost:8080", "Binas server address")
		cmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "Call timeout")
	}
	return cmds
}

func newInitStationCmd() *cobra.Command {
	var req station.InitRequest

	cmd := &cobra.Command{
		Use:   "init-station ID",
		Short: "Reconfigure a station",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
			return c.TestInitStation(ctx, args[0], req)
		}),
	}
	cmd.Flags().IntVar(&req.X, "x", 0, "X coordinate")
	cmd.Flags().IntVar(&req.Y, "y", 0, "Y coordinate")
	cmd.Flags().IntVar(&req.Capacity, "capacity", station.DefaultCapacity, "Number of docks")
	cmd.Flags().IntVar(&req.ReturnPrize, "prize", station.DefaultReturnPrize, "Credits paid for a return")
	return cmd
}

func newConfigureCmd() *cobra.Command {
	var req binas.ConfigureRequest

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Change the station count or template",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *binas.Client, args []string) error {
			return c.Configure(ctx, req)
		}),
	}
	cmd.Flags().IntVar(&req.Stations, "stations", 0, "Number of stations replicating balances")
	cmd.Flags().StringVar(&req.Template, "template", "", "Station name template")
	return cmd
}

func withClient(fn func(ctx context.Context, c *binas.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		conn, err := rpc.Dial(serverAddr)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		return fn(ctx, binas.NewClient(conn), args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
