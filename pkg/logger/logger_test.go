package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOrderID(ctx, "order-1")
	log.Error(ctx, "boom", errors.New("boom"))

	out := buf.String()
	require.Contains(t, out, `"request_id":"req-123"`)
	require.Contains(t, out, `"order_id":"order-1"`)
	require.Contains(t, out, `"stack"`)
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	require.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	require.NotContains(t, buf.String(), `"stack"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf})
	log.Info(context.Background(), "hidden")
	require.Zero(t, buf.Len())
}

func TestParseLevelDefaults(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestLoggerScopedFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithActor(context.Background(), "actor-1", "buyer")
	child := log.WithFields(parent, map[string]any{"attempt": 2})
	child = log.WithReservationID(child, "res-9")

	log.Info(child, "child")
	out := buf.String()
	require.Contains(t, out, `"actor_id":"actor-1"`)
	require.Contains(t, out, `"actor_role":"buyer"`)
	require.Contains(t, out, `"reservation_id":"res-9"`)
	require.Contains(t, out, `"attempt":2`)

	buf.Reset()
	log.Info(parent, "parent")
	require.Contains(t, buf.String(), `"actor_id":"actor-1"`)
	require.NotContains(t, buf.String(), "reservation_id")
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithOrderID(context.Background(), "order-1")
	log.Error(ctx, "ignored", errors.New("x"))
}
