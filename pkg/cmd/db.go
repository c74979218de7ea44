package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/cloudvault/pkg/app"
	"github.com/yeisme/cloudvault/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
	}

	dbListCmd = &cobra.Command{
		Use:   "ls",
		Short: "list all registered database types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered database types:")
			for _, dbType := range db.GetRegisteredDBTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), " - "+string(dbType))
			}
		},
	}

	// 连接全部后端并执行表结构迁移后退出.
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "connect to storage backends and migrate the metadata schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Bootstrap(configPath)
			if err != nil {
				return err
			}

			mgr, _, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", cfg.DB.GetDBType())

			return nil
		},
	}
)

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}
