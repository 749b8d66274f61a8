package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/report"
	"github.com/goodtune/sitetime/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	chartWidth   int
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's time per site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readAggregate(cmd, storage.FieldTimeData)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), report.RenderToday(rec.TimeData))
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the retained daily history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readAggregate(cmd, storage.FieldHistory)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), report.RenderHistory(rec.History))
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export the history as CSV",
	Example: `  sitetime export -o SiteTimeTracker.csv`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readAggregate(cmd, storage.FieldHistory)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			out = f
		}
		return report.WriteCSV(out, rec.History)
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Draw today's minutes per site",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readAggregate(cmd, storage.FieldTimeData)
		if err != nil {
			return err
		}
		return report.WriteChart(cmd.OutOrStdout(), rec.TimeData, chartWidth)
	},
}

var goalCmd = &cobra.Command{
	Use:   "goal MINUTES",
	Short: "Set the daily browsing goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number of minutes %q", args[0])
		}

		return withAggregate(func(aggregate storage.AggregateStore) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if _, err := report.NewSettings(aggregate).SetGoal(ctx, minutes); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Daily goal set to %d minutes\n", minutes)
			return err
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write CSV to file instead of stdout")
	chartCmd.Flags().IntVar(&chartWidth, "width", 40, "Width of the longest bar")

	rootCmd.AddCommand(todayCmd, historyCmd, exportCmd, chartCmd, goalCmd)
}

func readAggregate(cmd *cobra.Command, fields ...storage.Field) (storage.Record, error) {
	var rec storage.Record
	err := withAggregate(func(aggregate storage.AggregateStore) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		var err error
		rec, err = aggregate.Get(ctx, fields...)
		if err != nil {
			return fmt.Errorf("failed to read aggregate store: %w", err)
		}
		return nil
	})
	return rec, err
}

// withAggregate runs fn against the aggregate store alone. With storage.type
// bolt the file is locked while sitetime serve runs; use the HTTP API then.
func withAggregate(fn func(storage.AggregateStore) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := openAggregate(cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(st.Aggregate())
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, 10*time.Second)
}
