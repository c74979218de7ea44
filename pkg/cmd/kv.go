package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/cloudvault/pkg/configs"
	kv "github.com/yeisme/cloudvault/pkg/internal/storage/kv"
)

var (
	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "Key-Value store related commands",
		Aliases: []string{"keyvalue"},
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered kv types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered kv types:")
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	// 连接配置中的 KV 后端并做一次读写探测.
	kvPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "connect to the configured kv backend and run a health check",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			cfg := configs.GetConfig().KV

			c, err := kv.NewClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("kv %s unhealthy: %w", c.Type(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "kv %s ok\n", c.Type())

			if debug {
				keys, err := c.Keys(cmd.Context(), "")
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%d keys\n", len(keys))
				}
			}

			return nil
		},
	}
)

// registerKVCommands 注册 KV 相关命令.
func registerKVCommands() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvListCmd)
	kvCmd.AddCommand(kvPingCmd)
}
