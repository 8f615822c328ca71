package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	v1 "github.com/dysonhq/dyson/adapters/v1"
	"github.com/dysonhq/dyson/config"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/core/services"
	"github.com/dysonhq/dyson/internal/metrics"
	"github.com/dysonhq/dyson/internal/tools"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/spf13/cobra"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// ServiceFactory builds the CleanerService for a loaded configuration
type ServiceFactory func(ctx context.Context, c config.Config) (ports.CleanerService, error)

// CLIController maps CleanerService ports to cobra commands
type CLIController struct {
	newService  ServiceFactory
	configPath  string
	logLevel    string
	metricsFile string
	output      string
}

// NewCLIController initializes the CLIController with the injected service factory
func NewCLIController(newService ServiceFactory) *CLIController {
	return &CLIController{newService: newService}
}

// Command returns the root command with every subcommand attached
func (c *CLIController) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "dyson",
		Short:         "Delete unused images from a container registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != OutputTable && c.output != OutputJSON {
				return &domain.ConfigurationError{Err: fmt.Errorf("unknown output format %q", c.output)}
			}
			return logger.L().SetLevel(c.logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&c.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command ends")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", OutputTable, "Output format (table, json)")

	root.AddCommand(c.initCmd(), c.planCmd(), c.applyCmd(), c.versionCmd())
	return root
}

func (c *CLIController) initCmd() *cobra.Command {
	var stdout bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout {
				return config.WriteExample(cmd.OutOrStdout())
			}
			written, err := config.WriteExampleFile(c.configPath)
			if err != nil {
				return err
			}
			if !written {
				logger.L().Info("configuration already exists", helpers.String("path", c.configPath))
				return nil
			}
			logger.L().Info("configuration written", helpers.String("path", c.configPath))
			return nil
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the example to stdout instead of writing the file")
	return cmd
}

func (c *CLIController) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the images that would be deleted without deleting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, service ports.CleanerService) error {
				plan, err := service.Plan(ctx)
				if err != nil {
					return err
				}
				summary := service.Report(ctx, services.TitlePlan, plan, nil)
				return c.render(cmd.OutOrStdout(), plan, nil, summary)
			})
		},
	}
}

func (c *CLIController) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Build a plan and delete the images it selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, service ports.CleanerService) error {
				plan, err := service.Plan(ctx)
				if err != nil {
					return err
				}
				if c.output == OutputTable {
					if err := v1.RenderPlan(cmd.OutOrStdout(), plan); err != nil {
						return err
					}
				}
				results, err := service.Apply(ctx, plan)
				if err != nil {
					return err
				}
				summary := service.Report(ctx, services.TitleApply, plan, results)
				return c.render(cmd.OutOrStdout(), plan, results, summary)
			})
		},
	}
}

func (c *CLIController) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dyson %s\naws-sdk-go-v2 %s\n",
				tools.MainVersion(),
				tools.PackageVersion("github.com/aws/aws-sdk-go-v2"))
			return err
		},
	}
}

// withService loads the configuration, builds the service and runs fn. Metrics are
// written afterwards even when fn fails.
func (c *CLIController) withService(cmd *cobra.Command, fn func(context.Context, ports.CleanerService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	service, err := c.newService(ctx, cfg)
	if err != nil {
		return err
	}
	err = fn(ctx, service)
	if c.metricsFile != "" {
		if mErr := metrics.WriteTextfile(c.metricsFile); mErr != nil {
			logger.L().Ctx(ctx).Warning("metrics not written", helpers.String("path", c.metricsFile), helpers.Error(mErr))
		}
	}
	return err
}

type applyOutput struct {
	Plan    domain.Plan             `json:"plan"`
	Results []domain.DeletionResult `json:"results"`
}

func (c *CLIController) render(w io.Writer, plan domain.Plan, results []domain.DeletionResult, summary domain.Summary) error {
	if c.output == OutputJSON {
		if results == nil {
			return v1.WritePlanJSON(w, plan)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(applyOutput{Plan: plan, Results: results})
	}
	if results == nil {
		if err := v1.RenderPlan(w, plan); err != nil {
			return err
		}
	} else if err := v1.RenderResults(w, plan, results); err != nil {
		return err
	}
	return v1.RenderSummary(w, summary)
}
