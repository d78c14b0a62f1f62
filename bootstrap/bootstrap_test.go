package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loipv/hubcore/kafka"
)

var testService = StartConfig{ServiceName: "drops"}

// capture runs Execute and returns the Common handed to main
func capture(t *testing.T, opts ...Option) (*Common, error) {
	t.Helper()

	var got *Common
	opts = append([]Option{WithEnvFiles()}, opts...)
	err := Execute(testService, func(ctx context.Context, common *Common) error {
		got = common
		return nil
	}, opts...)
	return got, err
}

// unsetEnv clears key for the duration of the test
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestExecuteBuildsKafkaConfig(t *testing.T) {
	common, err := capture(t, WithArgs(
		"--kafka-brokers", "b1:9092, b2:9092",
		"--kafka-username", "svc",
		"--kafka-password", "secret",
		"--credit-sheet", "credits.toml",
		"-j", "2",
	))
	require.NoError(t, err)
	require.NotNil(t, common)

	assert.Equal(t, 2, common.Jobs)
	assert.Equal(t, 2, runtime.GOMAXPROCS(0))

	client := common.Producer.ClientConfig
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, client.Brokers)
	assert.True(t, client.SSL)
	require.NotNil(t, client.SASL)
	assert.Equal(t, "SCRAM-SHA-512", client.SASL.Mechanism)
	assert.Equal(t, "svc", client.SASL.Username)
	assert.Equal(t, "secret", client.SASL.Password)

	assert.Equal(t, "drops", common.Producer.Topic)
	assert.Equal(t, "drops", common.Consumer.ServiceName)
	assert.Equal(t, client, common.Consumer.ClientConfig)
	assert.Equal(t, "credits.toml", common.Credits.CreditSheet)
	assert.Equal(t, client, common.Credits.Kafka)
}

func TestExecuteWithoutCredentials(t *testing.T) {
	common, err := capture(t, WithArgs("--kafka-brokers", "localhost:9092", "--kafka-ssl=false"))
	require.NoError(t, err)

	assert.False(t, common.Producer.SSL)
	assert.Nil(t, common.Producer.SASL)
	assert.Equal(t, runtime.NumCPU(), common.Jobs)
}

func TestExecuteReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "env:9092")
	t.Setenv("KAFKA_SSL", "false")
	t.Setenv("LOG_LEVEL", "warn")

	common, err := capture(t)
	require.NoError(t, err)

	assert.Equal(t, []string{"env:9092"}, common.Producer.Brokers)
	assert.False(t, common.Producer.SSL)
	assert.Equal(t, "warn", common.Settings.GetString("log-level"))
	assert.False(t, common.Logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, common.Logger.Core().Enabled(zap.WarnLevel))
}

func TestExecuteFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "env:9092")

	common, err := capture(t, WithArgs("--kafka-brokers", "flag:9092"))
	require.NoError(t, err)
	assert.Equal(t, []string{"flag:9092"}, common.Producer.Brokers)
}

func TestExecuteLoadsEnvFiles(t *testing.T) {
	unsetEnv(t, "KAFKA_BROKERS")
	unsetEnv(t, "KAFKA_USERNAME")
	unsetEnv(t, "KAFKA_PASSWORD")

	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("KAFKA_BROKERS=local:9092\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte("KAFKA_BROKERS=shared:9092\nKAFKA_USERNAME=svc\nKAFKA_PASSWORD=pw\n"), 0o600))

	var got *Common
	err := Execute(testService, func(ctx context.Context, common *Common) error {
		got = common
		return nil
	}, WithEnvFiles(local, filepath.Join(dir, ".env.missing"), shared), WithArgs())
	require.NoError(t, err)

	assert.Equal(t, []string{"local:9092"}, got.Producer.Brokers)
	require.NotNil(t, got.Producer.SASL)
	assert.Equal(t, "svc", got.Producer.SASL.Username)
}

func TestExecuteValidation(t *testing.T) {
	unsetEnv(t, "KAFKA_BROKERS")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing brokers", nil, "--kafka-brokers is required"},
		{"username without password", []string{"--kafka-brokers", "b:9092", "--kafka-username", "svc"}, "must be given together"},
		{"password without username", []string{"--kafka-brokers", "b:9092", "--kafka-password", "pw"}, "must be given together"},
		{"negative jobs", []string{"--kafka-brokers", "b:9092", "--jobs=-1"}, "must not be negative"},
		{"bad log level", []string{"--kafka-brokers", "b:9092", "--log-level", "loud"}, "invalid log level"},
		{"unknown flag", []string{"--kafka-brokers", "b:9092", "--nope"}, "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Execute(testService, func(ctx context.Context, common *Common) error {
				called = true
				return nil
			}, WithEnvFiles(), WithArgs(tt.args...))

			assert.ErrorContains(t, err, tt.want)
			assert.False(t, called)
		})
	}
}

func TestExecuteServiceFlags(t *testing.T) {
	common, err := capture(t,
		WithFlags(func(flags *pflag.FlagSet) {
			flags.String("asset-cdn", "cdn.example.com", "CDN host")
			flags.Int("batch", 10, "Batch size")
		}),
		WithArgs("--kafka-brokers", "b:9092", "--batch", "25"),
	)
	require.NoError(t, err)

	assert.Equal(t, "cdn.example.com", common.Settings.GetString("asset-cdn"))
	assert.Equal(t, 25, common.Settings.GetInt("batch"))
}

func TestExecuteReturnsMainError(t *testing.T) {
	boom := errors.New("boom")
	err := Execute(testService, func(ctx context.Context, common *Common) error {
		return boom
	}, WithEnvFiles(), WithArgs("--kafka-brokers", "b:9092"))
	assert.ErrorIs(t, err, boom)
}

func TestExecuteRequiresServiceName(t *testing.T) {
	err := Execute(StartConfig{}, func(ctx context.Context, common *Common) error { return nil }, WithEnvFiles())
	assert.ErrorIs(t, err, kafka.ErrServiceRequired)
}

func TestRunExitCode(t *testing.T) {
	code := -1
	exit := func(c int) { code = c }

	Run(testService, func(ctx context.Context, common *Common) error {
		return nil
	}, WithEnvFiles(), WithArgs("--kafka-brokers", "b:9092"), WithExitFunc(exit))
	assert.Equal(t, -1, code)

	Run(testService, func(ctx context.Context, common *Common) error {
		return errors.New("boom")
	}, WithEnvFiles(), WithArgs("--kafka-brokers", "b:9092"), WithExitFunc(exit))
	assert.Equal(t, 1, code)
}

func TestCommonWiresMetrics(t *testing.T) {
	common, err := capture(t, WithArgs("--kafka-brokers", "b:9092"))
	require.NoError(t, err)

	assert.Len(t, common.ProducerOptions(), 2)
	assert.Len(t, common.ConsumerOptions(), 2)

	common.Metrics.Sent.WithLabelValues("drops").Inc()

	srv := httptest.NewServer(newMetricsHandler(common.Registry))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hub_kafka_producer_sent_total{topic="drops"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
