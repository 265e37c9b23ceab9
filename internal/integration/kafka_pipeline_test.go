//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/temperature-anomaly-service/internal/adapter/kafka"
	"github.com/couchcryptid/temperature-anomaly-service/internal/config"
	"github.com/couchcryptid/temperature-anomaly-service/internal/domain"
	"github.com/couchcryptid/temperature-anomaly-service/internal/observability"
	"github.com/couchcryptid/temperature-anomaly-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// verdictMessage holds a deserialized message read from the sink topic.
type verdictMessage struct {
	Verdict domain.Verdict
	Key     string
	Headers map[string]string
}

// readVerdict reads a single message from the sink consumer and deserializes it.
func readVerdict(ctx context.Context, t *testing.T, consumer *kafkago.Reader) verdictMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var v domain.Verdict
	require.NoError(t, json.Unmarshal(msg.Value, &v), "unmarshal sink message")

	return verdictMessage{
		Verdict: v,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func reading(city string, ts time.Time, temp float64) []byte {
	data, _ := json.Marshal(domain.LiveReading{City: city, Timestamp: ts, Temperature: temp, Source: "station"})
	return data
}

func streamConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (extractor) and
// kafka.Writer (loader) round-trip a reading and its verdict through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := streamConfig(broker, "test-reader")

	payload := reading("Paris", day(2024, time.January, 15), 5.0)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("Paris"), Value: payload}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("Paris"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(loadedAnalyzer(t), discardLogger())
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	vm := readVerdict(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "Paris", vm.Key)
	assert.Equal(t, domain.StatusAnomalous, vm.Headers["status"])
	_, err = time.Parse(time.RFC3339, vm.Headers["classified_at"])
	assert.NoError(t, err, "classified_at should be valid RFC3339")

	assert.True(t, vm.Verdict.Anomalous)
	assert.Equal(t, domain.Winter, vm.Verdict.Season)
	assert.Equal(t, "station", vm.Verdict.Source)
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Transformer → Writer)
// with real Kafka and checks every verdict status is produced.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := streamConfig(broker, "test-pipeline")

	inputs := []struct {
		city   string
		ts     time.Time
		temp   float64
		status string
	}{
		{"Paris", day(2024, time.January, 10), 5.0, domain.StatusAnomalous},
		{"Paris", day(2024, time.January, 11), 3.0, domain.StatusNormal},
		{"Paris", day(2024, time.February, 2), -4.0, domain.StatusAnomalous},
		{"Paris", day(2024, time.December, 24), 0.0, domain.StatusNormal},
		{"Berlin", day(2024, time.July, 1), 35.0, domain.StatusUndetermined},
		{"Cairo", day(2024, time.July, 1), 41.0, domain.StatusUnknownBaseline},
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(inputs))
	for _, in := range inputs {
		msgs = append(msgs, kafkago.Message{Key: []byte(in.city), Value: reading(in.city, in.ts, in.temp)})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	transformer := pipeline.NewTransformer(loadedAnalyzer(t), discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	got := make(map[string]int)
	for range inputs {
		vm := readVerdict(ctx, t, consumer)
		assert.Equal(t, vm.Verdict.Status, vm.Headers["status"])
		assert.Equal(t, vm.Verdict.City, vm.Key)
		got[vm.Verdict.Status]++
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	want := make(map[string]int)
	for _, in := range inputs {
		want[in.status]++
	}
	assert.Equal(t, want, got)
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := streamConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("Paris"), Value: reading("Paris", day(2024, time.January, 10), 3.0)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	transformer := pipeline.NewTransformer(loadedAnalyzer(t), discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	vm := readVerdict(ctx, t, consumer)
	assert.Equal(t, "Paris", vm.Verdict.City)
	assert.Equal(t, domain.StatusNormal, vm.Verdict.Status)

	// Verify no second message arrives (the poison pill was skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
