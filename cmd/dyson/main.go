package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	v1 "github.com/dysonhq/dyson/adapters/v1"
	"github.com/dysonhq/dyson/config"
	"github.com/dysonhq/dyson/controllers"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/dysonhq/dyson/core/services"
	"github.com/dysonhq/dyson/internal/tools"
	"github.com/dysonhq/dyson/repositories"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

func main() {
	ctx := context.Background()

	// to enable otel, set OTEL_COLLECTOR_SVC=otel-collector:4317
	if otelHost, present := os.LookupEnv("OTEL_COLLECTOR_SVC"); present {
		ctx = logger.InitOtel("dyson",
			tools.MainVersion(),
			"",
			"",
			url.URL{Host: otelHost})
		defer logger.ShutdownOtel(ctx)
	}

	// modify context to listen to interrupt signals from the OS.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller := controllers.NewCLIController(newCleanerService)
	if err := controller.Command().ExecuteContext(ctx); err != nil {
		logger.L().Ctx(ctx).Error("dyson failed", helpers.Error(err))
		stop()
		os.Exit(1)
	}
}

// newCleanerService wires the AWS adapters for a loaded configuration
func newCleanerService(ctx context.Context, c config.Config) (ports.CleanerService, error) {
	registry := c.RegistryDomain()
	ecrAdapter, err := v1.NewECRAdapter(ctx, registry)
	if err != nil {
		return nil, err
	}
	var notifiers []ports.Notifier
	if slack, ok := c.Slack(); ok {
		notifiers = append(notifiers, v1.NewSlackNotifier(v1.SlackOptions{
			WebhookURL: slack.WebhookURL,
			Username:   slack.Username,
			Channel:    slack.Channel,
			IconURL:    slack.IconURL,
		}))
	}
	return services.NewCleanerService(registry,
		c.ScanTargets(),
		ecrAdapter,
		ecrAdapter,
		v1.NewAWSConnector(c.Settings.DefinitionRevisions),
		notifiers,
		services.CleanerOptions{
			Concurrency: c.Settings.Concurrency,
			ScanTimeout: c.Settings.ScanTimeout,
			Executor: services.ExecutorOptions{
				BatchSize:   c.Settings.BatchSize,
				MaxAttempts: c.Settings.MaxAttempts,
				BaseDelay:   c.Settings.RetryBaseDelay,
				Concurrency: c.Settings.ApplyConcurrency,
			},
			NewCatalog: func() ports.CatalogRepository {
				return repositories.NewMemoryCatalog()
			},
		})
}
