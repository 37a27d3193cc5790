package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"iamdash/internal/app"
	"iamdash/internal/audit"
	"iamdash/internal/config"
	"iamdash/internal/domain"
	"iamdash/internal/logging"
	"iamdash/internal/rbac"
	"iamdash/internal/risk"
	"iamdash/internal/server"
)

func main() {
	var debug bool

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "iamdash",
		Short:        "IAM Dashboard - access guard and risk analysis over cloud identities",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logging.SetLogLevel(logging.LogLevelDebug)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (verbose output)")

	rootCmd.AddCommand(serveCmd(ctx))
	rootCmd.AddCommand(checkCmd(ctx))
	rootCmd.AddCommand(analyzeCmd(ctx))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildDashboard loads configuration, validates the declarative artifacts,
// and wires the core. Any configuration problem aborts startup; the guard
// never runs on a partial table.
func buildDashboard() (*app.Dashboard, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}

	matrixCfg, err := rbac.LoadMatrixConfig(cfg.MatrixPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading permission matrix: %w", err)
	}
	matrix, err := rbac.BuildMatrix(matrixCfg)
	if err != nil {
		return nil, nil, err
	}

	catalog, err := risk.LoadCatalog(cfg.WeightsPath)
	if err != nil {
		return nil, nil, err
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return nil, nil, err
	}
	emitter := audit.NewEmitter(sink, cfg.AuditQueueSize, cfg.AuditTimeout)

	dashboard := app.New(cfg, rbac.NewProvider(matrix), risk.NewEngine(catalog), emitter, sink)
	return dashboard, cfg, nil
}

func buildSink(cfg *config.Config) (audit.Sink, error) {
	switch cfg.AuditSink {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AuditTimeout*5)
		defer cancel()
		return audit.NewPostgresSink(ctx, cfg.AuditDSN)
	case "memory":
		return audit.NewMemorySink(), nil
	default:
		return audit.NewJSONLSink(cfg.AuditPath)
	}
}

func serveCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			dashboard, cfg, err := buildDashboard()
			if err != nil {
				return err
			}
			defer dashboard.Close()

			dashboard.VerifyAccounts(ctx)

			srv := server.New(dashboard, cfg.ListenAddr)
			return srv.ListenAndServe(ctx)
		},
	}
}

func checkCmd(ctx context.Context) *cobra.Command {
	var roleName, capabilityName, principalID string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one capability check against the permission matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			dashboard, _, err := buildDashboard()
			if err != nil {
				return err
			}
			defer dashboard.Close()

			role, err := domain.ParseRole(roleName)
			if err != nil {
				return err
			}
			capability := domain.Capability(capabilityName)

			dec, err := dashboard.Guard().Check(ctx, domain.Principal{ID: principalID, Role: role}, capability)
			if err != nil {
				return err
			}
			printJSON(dec)
			if !dec.Allowed {
				// os.Exit skips the deferred Close; flush the deny's audit
				// event to the sink first.
				_ = dashboard.Close()
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&roleName, "role", "", "Caller role (admin, analyst, auditor, viewer)")
	cmd.Flags().StringVar(&capabilityName, "capability", "", "Capability to check")
	cmd.Flags().StringVar(&principalID, "principal", "cli", "Principal identifier for the audit trail")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}

func analyzeCmd(ctx context.Context) *cobra.Command {
	var account, identity, roleName, principalID string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a risk assessment for one identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			dashboard, _, err := buildDashboard()
			if err != nil {
				return err
			}
			defer dashboard.Close()

			role, err := domain.ParseRole(roleName)
			if err != nil {
				return err
			}

			assessment, err := dashboard.Analyze(ctx, domain.Principal{ID: principalID, Role: role}, account, identity)
			if err != nil {
				return err
			}
			printJSON(assessment)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Configured account key")
	cmd.Flags().StringVar(&identity, "identity", "", "IAM user name to analyze")
	cmd.Flags().StringVar(&roleName, "role", "", "Caller role")
	cmd.Flags().StringVar(&principalID, "principal", "cli", "Principal identifier for the audit trail")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}
