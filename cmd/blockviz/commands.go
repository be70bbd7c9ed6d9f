package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fd1az/blockviz/business/blocks/domain"
)

const oneShotTimeout = 30 * time.Second

var watchOpts struct {
	cli bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the chain head in the terminal dashboard",
	Long: `Follows the L2 chain head and keeps a navigable window of recent blocks.
The terminal dashboard is the default; --cli runs headless with logs on stderr.`,
	RunE: runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live feed and the HTTP API without the dashboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHeadless(cmd.Context(), true)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Print the current L2 head number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, _, err := setup(cmd.Context(), setupOptions{quiet: true})
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()
		head, err := rt.svc.Ping(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"blockNumber": strconv.FormatUint(head, 10)})
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <number>",
	Short: "Print one L2 block in storage form",
	Example: `  # Fetch block 12000000
  blockviz block 12000000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %q", args[0])
		}

		rt, _, err := setup(cmd.Context(), setupOptions{quiet: true})
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()
		b, err := rt.svc.Block(ctx, number)
		if err != nil {
			return err
		}
		stored, err := domain.ToStored(*b)
		if err != nil {
			return err
		}
		return printJSON(stored)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOpts.cli, "cli", false, "run in CLI mode with logs (no TUI)")
	rootCmd.AddCommand(watchCmd, serveCmd, pingCmd, blockCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if watchOpts.cli {
		return runHeadless(cmd.Context(), false)
	}
	return runDashboard(cmd.Context())
}

// runHeadless starts everything and blocks until ctx is cancelled.
func runHeadless(ctx context.Context, forceAPI bool) error {
	rt, module, err := setup(ctx, setupOptions{telemetry: true, forceAPI: forceAPI, startFeed: true})
	if err != nil {
		return err
	}
	defer rt.close()

	startHealth(ctx, rt)

	if err := rt.mono.StartModules(ctx, module); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	rt.log.Info(ctx, "all modules started, following the chain head")

	<-ctx.Done()
	rt.log.Info(context.Background(), "shutting down")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
