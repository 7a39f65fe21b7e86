package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/imeetcentral/fattail-sync/internal/application"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/config"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/edge"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/fattail"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/ledger"
	"github.com/imeetcentral/fattail-sync/internal/infrastructure/report"
)

var (
	syncConfigPath string
	syncOverwrite  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <report-name>",
	Short: "Run one reconciliation pass driven by the named saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(syncConfigPath)
		if err != nil {
			return err
		}
		key, err := cfg.PrivateKey()
		if err != nil {
			return err
		}
		logger := slog.Default()

		tokens := edge.NewAssertionTokenSource(
			cfg.Workspace.Auth.URL,
			cfg.Workspace.Auth.ClientID,
			cfg.Workspace.Auth.Issuer,
			cfg.Workspace.Auth.Scope,
			key,
		)
		target := edge.NewService(edge.NewClient(cfg.Workspace.BaseURL, tokens, logger), logger)
		orders := fattail.NewService(fattail.NewClient(
			cfg.Orders.Endpoint, cfg.Orders.Username, cfg.Orders.Password, logger))

		fetcher := report.NewFetcher(orders, report.Options{
			TempDir:   cfg.Sync.TempDir,
			Timeout:   time.Duration(cfg.Sync.ReportTimeoutSeconds) * time.Second,
			SpanYears: cfg.Sync.ReportSpanYears,
			Logger:    logger,
		})

		changes, err := ledger.Open(cfg.Sync.LedgerDir, cfg.Sync.LedgerFile)
		if err != nil {
			return fmt.Errorf("failed to open change ledger: %w", err)
		}

		engine := application.NewEngine(target, orders, fetcher, changes, application.Options{
			WorkspaceTemplate:  cfg.Sync.WorkspaceTemplate,
			SalesRepRole:       cfg.Sync.SalesRepRole,
			ProjectManagerRole: cfg.Sync.ProjectManagerRole,
			TasklistTemplates:  cfg.Sync.TasklistTemplates,
			Overwrite:          syncOverwrite,
		}, logger)

		if err := engine.Run(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncConfigPath, "config", "c", "sync.yaml", "path to the configuration file")
	syncCmd.Flags().BoolVar(&syncOverwrite, "overwrite", false, "replace cross-references that already hold valid handles")
	RootCmd.AddCommand(syncCmd)
}
