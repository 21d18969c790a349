package main

import (
	"fmt"

	"github.com/code-100-precent/FocusBuddy/cmd/bootstrap"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	db := &cobra.Command{Use: "db", Short: "Manage the database used by STORE_TYPE=db"}

	var initSQL string
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the session tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := bootstrap.SetupDatabase(cmd.ErrOrStderr(), cfg.Database, &bootstrap.Options{
				InitSQLPath: initSQL,
				AutoMigrate: true,
			})
			if err != nil {
				return err
			}
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			return nil
		},
	}
	migrate.Flags().StringVar(&initSQL, "init-sql", "", "SQL script to run before migrating")

	db.AddCommand(migrate)
	return db
}
