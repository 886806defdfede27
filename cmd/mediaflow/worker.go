package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/provider"
	"github.com/mohitkumar/mediaflow/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// workerCommand runs an external worker that serves one channel with the
// mock providers. It stands in for a remote module during development.
func workerCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "poll one external channel and run its jobs with the mock providers",
		RunE:  runWorker,
	}
	cmd.Flags().String("server-url", "localhost:8099", "grpc address of the mediaflow server")
	cmd.Flags().String("channel", "", "channel to poll, e.g. video.generate")
	cmd.Flags().Int("batch-size", 1, "jobs fetched per poll")
	cmd.Flags().Duration("poll-interval", config.Default().ExecutorConfig.PollInterval, "poll interval")
	cmd.Flags().Int("report-retries", 3, "retries of a failed result report")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return cmd, nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := logger.Init(viper.GetString("log-level"), viper.GetBool("log-development")); err != nil {
		return err
	}
	defer logger.Sync()
	channel := viper.GetString("channel")
	if len(channel) == 0 {
		return fmt.Errorf("channel is required")
	}
	providers := provider.MockSet()
	handler := func(ctx context.Context, msg *model.DispatchMessage) (map[string]any, error) {
		capability, ok := providers.For(msg.Operation.Category())
		if !ok {
			return nil, fmt.Errorf("no provider for %s", msg.Operation)
		}
		return capability.Execute(ctx, msg.Operation, msg.InputPayload)
	}
	var wg sync.WaitGroup
	pw, err := worker.NewPollerWorker(worker.Config{
		ServerUrl:        viper.GetString("server-url"),
		Channel:          channel,
		BatchSize:        viper.GetInt("batch-size"),
		PollInterval:     viper.GetDuration("poll-interval"),
		MaxReportRetries: viper.GetInt("report-retries"),
	}, handler, &wg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	pw.Start()
	logger.Info("worker started", zap.String("channel", channel))
	<-ctx.Done()
	err = pw.Stop()
	wg.Wait()
	return err
}
