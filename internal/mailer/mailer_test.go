package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestComposeHeaders(t *testing.T) {
	m := compose("alerts@example.com", Message{To: "u2@example.com", Subject: "New rating", Body: "You were rated"})

	assert.Equal(t, []string{"alerts@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"u2@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"New rating"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "You were rated")
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLog(zap.New(core))

	require.NoError(t, l.Send(context.Background(), Message{To: "u2@example.com", Subject: "hi"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "u2@example.com", logs.All()[0].ContextMap()["to"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Send(ctx, Message{}), context.Canceled)
}

func TestSMTPHonoursCancelledContext(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "a@example.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "b@example.com"}), context.Canceled)
}
