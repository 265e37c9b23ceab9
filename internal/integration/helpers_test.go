//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/anomaly"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("temperature-anomaly-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func rec(city string, ts time.Time, temp float64) domain.TemperatureRecord {
	return domain.TemperatureRecord{City: city, Timestamp: ts, Season: domain.SeasonOf(ts), Temperature: temp}
}

// loadedAnalyzer returns an analyzer over a small history: Paris winter has
// mean 0.2 and std sqrt(3.7), Berlin summer is a single record.
func loadedAnalyzer(t *testing.T) *anomaly.Analyzer {
	t.Helper()
	m := observability.NewMetricsForTesting()
	a := anomaly.NewAnalyzer(
		anomaly.NewBaselineCache(2, m),
		anomaly.NewScanner(0, discardLogger(), m),
		nil, discardLogger(), m,
	)
	_, err := a.Load(domain.Dataset{
		rec("Paris", day(2020, time.January, 1), -2),
		rec("Paris", day(2020, time.January, 2), 0),
		rec("Paris", day(2020, time.January, 3), 1),
		rec("Paris", day(2020, time.February, 1), -1),
		rec("Paris", day(2020, time.December, 1), 3),
		rec("Berlin", day(2020, time.July, 1), 24),
	})
	require.NoError(t, err)
	return a
}
