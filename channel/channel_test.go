package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvelopeMarshal(t *testing.T) {
	env := NewEnvelope("fxaccounts:login", map[string]string{"email": "a@example.com"})
	require.NotEmpty(t, env.MessageID)

	b, err := env.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "fxaccounts:login", decoded["command"])
	assert.Equal(t, env.MessageID, decoded["messageId"])
	assert.Equal(t, map[string]any{"email": "a@example.com"}, decoded["data"])
}

func TestEnvelopeMessageIDsAreUnique(t *testing.T) {
	a := NewEnvelope("x", nil)
	b := NewEnvelope("x", nil)
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestRecorderCountsAndFails(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	require.NoError(t, rec.Send(ctx, "fxaccounts:login", 1))
	require.NoError(t, rec.Send(ctx, "fxaccounts:sync_preferences", 2))

	boom := errors.New("boom")
	rec.FailWith(boom)
	err := rec.Send(ctx, "fxaccounts:login", 3)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, rec.Sent("fxaccounts:login"))
	assert.Equal(t, 1, rec.Sent("fxaccounts:sync_preferences"))
	assert.Len(t, rec.Messages(), 3)
}

func TestNullDiscards(t *testing.T) {
	assert.NoError(t, Null{}.Send(context.Background(), "anything", nil))
}

func TestMeteredCountsResults(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	sends := NewSendCounter()
	m := NewMetered(rec, sends)

	require.NoError(t, m.Send(ctx, "fxaccounts:login", nil))
	rec.FailWith(errors.New("down"))
	require.Error(t, m.Send(ctx, "fxaccounts:login", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(sends.WithLabelValues("fxaccounts:login", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sends.WithLabelValues("fxaccounts:login", "error")))
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	ch, closeFn, err := New(ctx, Config{}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, Null{}, ch)
	assert.NoError(t, closeFn())

	_, _, err = New(ctx, Config{Driver: "carrier-pigeon"}, discardLogger())
	assert.ErrorContains(t, err, "unknown channel driver")

	_, _, err = New(ctx, Config{Driver: DriverKafka}, discardLogger())
	assert.ErrorContains(t, err, "brokers")

	ch, closeFn, err = New(ctx, Config{Driver: DriverKafka, Kafka: KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "fxaccounts"}}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, ch)
	assert.NoError(t, closeFn())
}

func TestNewKafkaRequiresTopic(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}, discardLogger())
	assert.ErrorContains(t, err, "topic")
}
