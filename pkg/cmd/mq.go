package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/cloudvault/pkg/configs"
	mq "github.com/yeisme/cloudvault/pkg/internal/storage/mq"
	"github.com/yeisme/cloudvault/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "Message queue related commands",
		Aliases: []string{"messagequeue"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered mq types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered mq types:")
			for _, t := range mq.GetRegisteredMQTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	mqPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "connect to the configured message queue and run a health check",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			c, err := mq.New(cmd.Context(), configs.GetConfig().MQ, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("mq %s unhealthy: %w", c.Type(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mq %s ok\n", c.Type())

			return nil
		},
	}

	mqTopicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "list the topics published and consumed by the service",
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range queue.AllTopics() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}
)

// registerMQCommands 注册 MQ 相关命令.
func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqListCmd)
	mqCmd.AddCommand(mqPingCmd)
	mqCmd.AddCommand(mqTopicsCmd)
}
