package main

import (
	"fmt"
	"os"

	"github.com/goodtune/sitetime/internal/config"
	"github.com/goodtune/sitetime/internal/persistence"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Repair empty aggregate fields from the local backup",
	Long: `Read timeData and history from the aggregate store and replace each field
that is empty with the copy held in the local backup store. Non-empty
aggregate data is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	st, err := openStores(cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	facade := persistence.New(st.aggregate.Aggregate(), st.backup.Backup(), cfg.Storage.Backup.Key, logger)
	defer facade.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	restored, err := facade.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(restored) == 0 {
		_, err = fmt.Fprintln(out, "Nothing to recover: aggregate store already holds data or no backup exists.")
		return err
	}
	for _, f := range restored {
		if _, err := fmt.Fprintf(out, "Restored %s from backup\n", f); err != nil {
			return err
		}
	}
	return nil
}
