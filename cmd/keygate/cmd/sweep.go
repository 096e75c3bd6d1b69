package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tgrimes/keygate/config"
	"github.com/tgrimes/keygate/session"
	"github.com/tgrimes/keygate/session/kv"
	pgstore "github.com/tgrimes/keygate/session/postgres"
	bboltstorage "github.com/tgrimes/keygate/storage/bbolt"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		log := newLogger(cfg.Log)
		ctx := cmd.Context()

		var store session.Store
		switch cfg.Session.Backend {
		case config.BackendPostgres:
			pg, err := pgstore.NewStoreFromDSN(ctx, cfg.Session.PostgresDSN)
			if err != nil {
				return fmt.Errorf("opening postgres session store: %w", err)
			}
			defer pg.Close()
			store = pg
		default:
			repo, err := bboltstorage.NewRepositoryFromFile(cfg.Session.BboltPath, nil)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer repo.Close()
			store = kv.NewStore(repo)
		}

		n, err := store.DeleteExpired(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("deleting expired sessions: %w", err)
		}
		log.Info("sweep complete", "deleted", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
