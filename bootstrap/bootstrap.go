// Package bootstrap starts a service: it loads .env files, parses the common
// flags, builds the logger and the Kafka client configuration, and runs the
// service main function.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loipv/hubcore/credits"
	"github.com/loipv/hubcore/kafka"
)

// StartConfig describes the service being started
type StartConfig struct {
	// ServiceName names the service's own topic and its consumer groups
	ServiceName string
}

// Common holds everything built from the common flags
type Common struct {
	Logger   *zap.Logger
	Jobs     int
	Producer kafka.ProducerConfig
	Consumer kafka.ConsumerConfig
	Credits  credits.Config
	Registry *prometheus.Registry
	Metrics  *kafka.Metrics
	// Settings holds every flag, including those added with WithFlags
	Settings *viper.Viper
}

// KafkaLogger adapts Logger for the kafka runtime
func (c *Common) KafkaLogger() kafka.Logger {
	return kafka.NewZapLogger(c.Logger)
}

// ProducerOptions wires the service logger and metrics into a producer
func (c *Common) ProducerOptions() []kafka.ProducerOption {
	return []kafka.ProducerOption{
		kafka.WithLogger(c.KafkaLogger()),
		kafka.WithMetrics(c.Metrics),
	}
}

// ConsumerOptions wires the service logger and metrics into a consumer
func (c *Common) ConsumerOptions() []kafka.ConsumerOption {
	return []kafka.ConsumerOption{
		kafka.ConsumerWithLogger(c.KafkaLogger()),
		kafka.ConsumerWithMetrics(c.Metrics),
	}
}

// MainFunc is the body of a service. ctx is cancelled on SIGINT or SIGTERM.
type MainFunc func(ctx context.Context, common *Common) error

type runOptions struct {
	args     []string
	envFiles []string
	flags    []func(*pflag.FlagSet)
	exit     func(int)
}

// Option configures Run
type Option func(*runOptions)

// WithFlags registers service specific flags. Their values are read from
// Common.Settings.
func WithFlags(fn func(*pflag.FlagSet)) Option {
	return func(o *runOptions) {
		o.flags = append(o.flags, fn)
	}
}

// WithArgs replaces the command line arguments
func WithArgs(args ...string) Option {
	return func(o *runOptions) {
		o.args = args
	}
}

// WithEnvFiles replaces the .env files loaded at startup
func WithEnvFiles(files ...string) Option {
	return func(o *runOptions) {
		o.envFiles = files
	}
}

// WithExitFunc replaces os.Exit
func WithExitFunc(exit func(int)) Option {
	return func(o *runOptions) {
		o.exit = exit
	}
}

// Run starts the service and exits the process with status 1 if startup or
// main fails
func Run(cfg StartConfig, main MainFunc, opts ...Option) {
	o := newRunOptions(opts)
	if err := execute(cfg, main, o); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cfg.ServiceName, err)
		o.exit(1)
	}
}

// Execute starts the service like Run but returns the error instead of
// exiting
func Execute(cfg StartConfig, main MainFunc, opts ...Option) error {
	return execute(cfg, main, newRunOptions(opts))
}

func newRunOptions(opts []Option) *runOptions {
	o := &runOptions{
		args:     os.Args[1:],
		envFiles: defaultEnvFiles(),
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func execute(cfg StartConfig, main MainFunc, o *runOptions) error {
	if cfg.ServiceName == "" {
		return kafka.ErrServiceRequired
	}
	if err := loadEnvFiles(o.envFiles); err != nil {
		return err
	}

	cmd := &cobra.Command{
		Use:           cfg.ServiceName,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	registerFlags(cmd.Flags())
	for _, fn := range o.flags {
		fn(cmd.Flags())
	}

	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, err := readSettings(v)
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.ServiceName, s)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		common := newCommon(cfg, s, v, logger)
		logger.Debug("runtime initialized", zap.Int("jobs", common.Jobs), zap.Strings("brokers", s.brokers))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, s, common, main)
	}

	cmd.SetArgs(o.args)
	return cmd.ExecuteContext(context.Background())
}

func run(ctx context.Context, s *settings, common *Common, main MainFunc) error {
	if s.metricsAddr == "" {
		return runMain(ctx, common, main)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	go func() { serveErr <- serveMetrics(serveCtx, s.metricsAddr, common.Registry, common.Logger) }()

	err := runMain(ctx, common, main)
	cancel()
	if serr := <-serveErr; serr != nil {
		common.Logger.Error("metrics server failed", zap.Error(serr))
	}
	return err
}

func runMain(ctx context.Context, common *Common, main MainFunc) error {
	if err := main(ctx, common); err != nil {
		common.Logger.Error("service failed", zap.Error(err))
		return err
	}
	return nil
}

func newLogger(service string, s *settings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", s.logLevel, err)
	}

	var cfg zap.Config
	if s.dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	fields := []zap.Field{zap.String("service", service)}
	if host, err := os.Hostname(); err == nil {
		fields = append(fields, zap.String("host", host))
	}
	return logger.With(fields...), nil
}

func newCommon(cfg StartConfig, s *settings, v *viper.Viper, logger *zap.Logger) *Common {
	jobs := s.jobs
	if jobs == 0 {
		jobs = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(jobs)

	client := kafka.ClientConfig{
		Brokers:  s.brokers,
		ClientID: cfg.ServiceName,
		SSL:      s.kafkaSSL,
	}
	if s.kafkaUsername != "" {
		client.SASL = &kafka.SASLConfig{
			Mechanism: kafka.DefaultSASLMechanism,
			Username:  s.kafkaUsername,
			Password:  s.kafkaPassword,
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Common{
		Logger:   logger,
		Jobs:     jobs,
		Producer: kafka.ProducerConfig{ClientConfig: client, Topic: cfg.ServiceName},
		Consumer: kafka.ConsumerConfig{ClientConfig: client, ServiceName: cfg.ServiceName},
		Credits:  credits.Config{CreditSheet: s.creditSheet, Kafka: client},
		Registry: reg,
		Metrics:  kafka.NewMetrics(reg),
		Settings: v,
	}
}
