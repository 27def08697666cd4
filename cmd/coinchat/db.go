package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/coinchat/internal/config"
	"github.com/zulandar/coinchat/internal/db"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Coinchat database",
		Long:  "Creates the MySQL database when needed and migrates the session and wallet tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for user %q from %s\n", cfg.UserID, configPath)

	st := cfg.Storage
	var gormDB *gorm.DB
	switch st.Driver {
	case "mysql":
		adminDB, err := db.ConnectAdmin(st.User, st.Host, st.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", st.Host, st.Port, err)
		}
		fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", st.Host, st.Port)
		err = db.CreateDatabase(adminDB, st.Database)
		db.Close(adminDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", st.Database)
		gormDB, err = db.Connect(st.User, st.Host, st.Port, st.Database)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", st.Database, err)
		}
	default:
		gormDB, err = db.Open(st)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Opened SQLite database %s\n", st.Path)
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nCoinchat database initialized successfully.")
	return nil
}
