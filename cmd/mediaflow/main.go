package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohitkumar/mediaflow/agent"
	"github.com/mohitkumar/mediaflow/analytics"
	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	def := config.Default()
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("log-level", def.LogLevel, "log level")
	cmd.Flags().Bool("log-development", false, "human readable development logging")
	cmd.Flags().Int("http-port", def.HttpPort, "http port for rest endpoints")
	cmd.Flags().Int("grpc-port", def.GrpcPort, "grpc port for worker connection")
	cmd.Flags().String("storage-impl", string(def.StorageType), "record storage: memory, redis or postgres")
	cmd.Flags().String("queue-impl", string(def.QueueType), "queue implementation: memory or redis")
	cmd.Flags().String("redis-addr", strings.Join(def.RedisConfig.Addrs, ","), "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().String("namespace", def.RedisConfig.Namespace, "namespace used in redis keys")
	cmd.Flags().Int("partitions", def.RedisConfig.PartitionCount, "number of redis queue partitions")
	cmd.Flags().String("postgres-dsn", "", "postgres connection string")
	cmd.Flags().Int32("postgres-max-conns", 10, "postgres pool size")
	cmd.Flags().Int("default-max-retries", def.LedgerConfig.DefaultMaxRetries, "max retries of jobs that do not set one")
	cmd.Flags().String("retry-policy", string(def.DispatchConfig.RetryPolicy), "retry policy: FIXED or BACKOFF")
	cmd.Flags().Int("retry-after-seconds", def.DispatchConfig.RetryAfterSeconds, "base retry delay in seconds")
	cmd.Flags().Duration("dispatch-timeout", def.DispatchConfig.Timeout, "timeout of one queue hand-off")
	cmd.Flags().Float64("dispatch-rate", def.DispatchConfig.RatePerSecond, "max hand-offs per second, 0 for no limit")
	cmd.Flags().Int("dispatch-burst", def.DispatchConfig.Burst, "hand-off burst size")
	cmd.Flags().Int("dispatch-capacity", def.DispatchConfig.Capacity, "hand-off buffer per worker")
	cmd.Flags().Int("executor-workers", def.ExecutorConfig.Workers, "built-in executor workers")
	cmd.Flags().Int("executor-capacity", def.ExecutorConfig.Capacity, "built-in executor buffer per worker")
	cmd.Flags().Duration("executor-poll-interval", def.ExecutorConfig.PollInterval, "queue poll interval")
	cmd.Flags().Int("job-timeout-seconds", def.ExecutorConfig.JobTimeoutSeconds, "timeout of a running job when its module sets none")
	cmd.Flags().Bool("mock-modules", def.ExecutorConfig.RegisterMockModules, "register the mock provider modules at startup")
	cmd.Flags().String("modules-file", "", "yaml manifest of modules registered at startup")
	cmd.Flags().String("event-prefix", def.EventConfig.ChannelPrefix, "prefix of redis event channels")
	cmd.Flags().String("event-source", def.EventConfig.Source, "source stamped on events")
	cmd.Flags().Int("event-capacity", def.EventConfig.SubscriberCapacity, "buffered events per subscriber")
	cmd.Flags().Bool("publish-redis-events", false, "publish lifecycle events on redis channels")
	cmd.Flags().String("status-scope", string(def.StatusScope), "jobs counted by workflow status: project or draft")
	cmd.Flags().String("analytics-file", "", "write job analytics to this file")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if len(configFile) != 0 {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	viper.SetEnvPrefix("MEDIAFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	c.cfg = config.Default()
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.LogDevelopment = viper.GetBool("log-development")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.GrpcPort = viper.GetInt("grpc-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.QueueType = config.QueueType(viper.GetString("queue-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.PartitionCount = viper.GetInt("partitions")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.PostgresConfig.MaxConns = viper.GetInt32("postgres-max-conns")
	c.cfg.LedgerConfig.DefaultMaxRetries = viper.GetInt("default-max-retries")
	c.cfg.DispatchConfig.RetryPolicy = config.RetryPolicy(viper.GetString("retry-policy"))
	c.cfg.DispatchConfig.RetryAfterSeconds = viper.GetInt("retry-after-seconds")
	c.cfg.DispatchConfig.Timeout = viper.GetDuration("dispatch-timeout")
	c.cfg.DispatchConfig.RatePerSecond = viper.GetFloat64("dispatch-rate")
	c.cfg.DispatchConfig.Burst = viper.GetInt("dispatch-burst")
	c.cfg.DispatchConfig.Capacity = viper.GetInt("dispatch-capacity")
	c.cfg.ExecutorConfig.Workers = viper.GetInt("executor-workers")
	c.cfg.ExecutorConfig.Capacity = viper.GetInt("executor-capacity")
	c.cfg.ExecutorConfig.PollInterval = viper.GetDuration("executor-poll-interval")
	c.cfg.ExecutorConfig.JobTimeoutSeconds = viper.GetInt("job-timeout-seconds")
	c.cfg.ExecutorConfig.RegisterMockModules = viper.GetBool("mock-modules")
	c.cfg.ModulesFile = viper.GetString("modules-file")
	c.cfg.EventConfig.ChannelPrefix = viper.GetString("event-prefix")
	c.cfg.EventConfig.Source = viper.GetString("event-source")
	c.cfg.EventConfig.SubscriberCapacity = viper.GetInt("event-capacity")
	c.cfg.EventConfig.PublishToRedis = viper.GetBool("publish-redis-events")
	c.cfg.StatusScope = config.StatusScope(viper.GetString("status-scope"))
	if file := viper.GetString("analytics-file"); len(file) != 0 {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{
			FileName:      file,
			CollectorType: analytics.LOG_FILE_DATA_COLLECTOR,
		}
	}
	return logger.Init(c.cfg.LogLevel, c.cfg.LogDevelopment)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	a, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "mediaflow",
		Short:   "job and workflow orchestration server",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}
	workerCmd, err := workerCommand()
	if err != nil {
		log.Fatal(err)
	}
	cmd.AddCommand(workerCmd)

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
