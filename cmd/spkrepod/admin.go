package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/synocommunity/spkrepo/internal/model"
	"github.com/synocommunity/spkrepo/internal/reconcile"
	"github.com/synocommunity/spkrepo/internal/store"
)

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(context.Background(), cfg.DatabaseURL)
}

func newBootstrapDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-db",
		Short: "Apply the schema to a fresh database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Bootstrap(cmd.Context())
		},
	}
}

func newPopulateDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "populate-db",
		Short: "Seed lookup tables (architectures, firmwares, languages, roles, services)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Seed(cmd.Context())
		},
	}
}

func newDepopulateDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depopulate-db",
		Short: "Delete every Package, cascading to its Versions/Builds, and the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.ListPackageNames(cmd.Context(), s.Pool)
			if err != nil {
				return err
			}
			for _, name := range names {
				pkg, err := s.FindPackage(cmd.Context(), s.Pool, name)
				if err != nil {
					return err
				}
				if err := s.DeletePackage(cmd.Context(), s.Pool, pkg.ID); err != nil {
					return err
				}
				if err := os.RemoveAll(filepath.Join(cfg.DataPath, name)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCreateUserCmd() *cobra.Command {
	var roleNames []string
	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create a user and print its generated API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			roles := make([]model.Role, 0, len(roleNames))
			for _, name := range roleNames {
				roles = append(roles, model.Role(name))
			}
			apiKey := ksuid.New().String()
			user, err := s.CreateUser(cmd.Context(), s.Pool, args[0], apiKey, roles)
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (%s) with api key %s\n", user.Username, user.ID, user.APIKey)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roleNames, "role", nil, "role to grant (repeatable): admin, package_admin, developer")
	return cmd
}

func newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <build-id>",
		Short: "Re-parse a build's SPK file and refresh its derived rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid build id %q: %w", args[0], err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			return reconcile.New(s, cfg.DataPath).Resync(cmd.Context(), buildID)
		},
	}
}

func newActivateBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate-build <build-id>",
		Short: "Publish a build to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleBuildActive(cmd, args[0], true)
		},
	}
}

func newDeactivateBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate-build <build-id>",
		Short: "Withdraw a build from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleBuildActive(cmd, args[0], false)
		},
	}
}

func toggleBuildActive(cmd *cobra.Command, buildIDArg string, active bool) error {
	buildID, err := strconv.ParseInt(buildIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid build id %q: %w", buildIDArg, err)
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if active {
		return s.ActivateBuild(cmd.Context(), s.Pool, buildID)
	}
	return s.DeactivateBuild(cmd.Context(), s.Pool, buildID)
}
