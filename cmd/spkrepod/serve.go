package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/synocommunity/spkrepo/internal/api"
	"github.com/synocommunity/spkrepo/internal/logging"
	"github.com/synocommunity/spkrepo/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			s, err := store.Open(context.Background(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer s.Close()

			log.WithField("addr", cfg.ListenAddr).Info("spkrepod: listening")
			return api.New(cfg, s, log).Start()
		},
	}
}
