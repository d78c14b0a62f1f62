package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	flagJobs          = "jobs"
	flagKafkaBrokers  = "kafka-brokers"
	flagKafkaUsername = "kafka-username"
	flagKafkaPassword = "kafka-password"
	flagKafkaSSL      = "kafka-ssl"
	flagCreditSheet   = "credit-sheet"
	flagLogLevel      = "log-level"
	flagDev           = "dev"
	flagMetricsAddr   = "metrics-addr"
)

// settings are the parsed common flags
type settings struct {
	jobs          int
	brokers       []string
	kafkaUsername string
	kafkaPassword string
	kafkaSSL      bool
	creditSheet   string
	logLevel      string
	dev           bool
	metricsAddr   string
}

func registerFlags(flags *pflag.FlagSet) {
	flags.IntP(flagJobs, "j", 0, "Number of OS threads executing Go code (default: number of CPUs)")
	flags.String(flagKafkaBrokers, "", "Comma-separated list of Kafka brokers")
	flags.String(flagKafkaUsername, "", "SASL username, requires --kafka-password")
	flags.String(flagKafkaPassword, "", "SASL password, requires --kafka-username")
	flags.Bool(flagKafkaSSL, true, "Connect to Kafka over TLS")
	flags.String(flagCreditSheet, "", "Path to the TOML credit price sheet")
	flags.String(flagLogLevel, "", "Log level (default: debug with --dev, info otherwise)")
	flags.Bool(flagDev, false, "Human readable development logging")
	flags.String(flagMetricsAddr, "", "Serve Prometheus metrics on this address, disabled when empty")
}

// newViper binds every flag of the set into a viper instance. Each flag can
// also be given as an environment variable named after it in upper snake
// case, e.g. KAFKA_BROKERS.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

func readSettings(v *viper.Viper) (*settings, error) {
	s := &settings{
		jobs:          v.GetInt(flagJobs),
		kafkaUsername: v.GetString(flagKafkaUsername),
		kafkaPassword: v.GetString(flagKafkaPassword),
		kafkaSSL:      v.GetBool(flagKafkaSSL),
		creditSheet:   v.GetString(flagCreditSheet),
		logLevel:      v.GetString(flagLogLevel),
		dev:           v.GetBool(flagDev),
		metricsAddr:   v.GetString(flagMetricsAddr),
	}

	for _, broker := range strings.Split(v.GetString(flagKafkaBrokers), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			s.brokers = append(s.brokers, broker)
		}
	}

	if len(s.brokers) == 0 {
		return nil, fmt.Errorf("--%s is required", flagKafkaBrokers)
	}
	if (s.kafkaUsername == "") != (s.kafkaPassword == "") {
		return nil, fmt.Errorf("--%s and --%s must be given together", flagKafkaUsername, flagKafkaPassword)
	}
	if s.jobs < 0 {
		return nil, fmt.Errorf("--%s must not be negative", flagJobs)
	}
	if s.logLevel == "" {
		s.logLevel = "info"
		if s.dev {
			s.logLevel = "debug"
		}
	}
	return s, nil
}

// defaultEnvFiles returns the .env files read at startup, most specific
// first. APP_ENV selects the environment file and defaults to prod.
func defaultEnvFiles() []string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "prod"
	}
	return []string{".env.local", ".env." + env, ".env"}
}

// loadEnvFiles loads each file that exists. Variables already set in the
// environment, or by an earlier file, are kept.
func loadEnvFiles(files []string) error {
	for _, file := range files {
		if err := gotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load .env file %q: %w", file, err)
		}
	}
	return nil
}
