package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yeisme/cloudvault/pkg/app"
	"github.com/yeisme/cloudvault/pkg/internal/service"
)

var (
	quotaCmd = &cobra.Command{
		Use:   "quota",
		Short: "storage quota commands",
	}

	// 立即执行一次配额对账，输出修正记录.
	quotaAuditCmd = &cobra.Command{
		Use:   "audit",
		Short: "recompute storage usage from file records and fix drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(svcs *service.Services) error {
				fixes, err := svcs.Quota.Reconcile(cmd.Context())
				if err != nil {
					return err
				}

				if len(fixes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no drift found")

					return nil
				}

				for _, f := range fixes {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", f.UserID,
						humanize.IBytes(uint64(max(f.Previous, 0))), humanize.IBytes(uint64(max(f.Actual, 0))))
				}

				if debug {
					b, _ := json.MarshalIndent(fixes, "", "  ")
					fmt.Fprintln(cmd.ErrOrStderr(), string(b))
				}

				return nil
			})
		},
	}

	purgeCmd = &cobra.Command{
		Use:   "purge-infected",
		Short: "delete stored objects of files flagged as infected",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(svcs *service.Services) error {
				n, err := svcs.Maintenance.PurgeInfected(cmd.Context(), batchSize)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "purged %d infected files\n", n)

				return nil
			})
		},
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep-shares",
		Short: "deactivate expired share links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(svcs *service.Services) error {
				n, err := svcs.Maintenance.SweepExpiredShares(cmd.Context(), batchSize)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d expired shares\n", n)

				return nil
			})
		},
	}

	batchSize int
)

// withServices 连接存储并构造服务，命令执行完后关闭连接.
// CLI 不发布事件也不调度复扫.
func withServices(cmd *cobra.Command, fn func(*service.Services) error) error {
	cfg, err := app.Bootstrap(configPath)
	if err != nil {
		return err
	}

	mgr, st, err := app.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()

	return fn(service.New(service.Deps{
		Config:  cfg,
		Store:   st,
		Objects: mgr.S3,
		Cache:   mgr.KV.KVStore,
	}))
}

func registerMaintenanceCommands() {
	quotaCmd.AddCommand(quotaAuditCmd)
	rootCmd.AddCommand(quotaCmd)

	for _, c := range []*cobra.Command{purgeCmd, sweepCmd} {
		c.Flags().IntVar(&batchSize, "batch", service.DefaultSweepBatch, "rows per batch")
		rootCmd.AddCommand(c)
	}
}
