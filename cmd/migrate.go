package cmd

import (
	"errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"video-sentinel/config"
	"video-sentinel/repository"
)

func migrate(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DB == nil {
				return errors.New("postgresql_host is not configured")
			}
			repo, err := repository.NewRepo(cfg.DB, true)
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("schema is up to date")
			return nil
		},
	}
}
