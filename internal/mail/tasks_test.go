package mail

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

func TestNewOTPEmailTaskCarriesPayload(t *testing.T) {
	task, err := NewOTPEmailTask(OTPEmailPayload{
		Email:          "ravi@example.com",
		Name:           "Ravi",
		OTP:            "123456",
		ExpiresMinutes: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeOTPEmail, task.Type())

	var payload OTPEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "123456", payload.OTP)
	assert.Equal(t, "ravi@example.com", payload.Email)
}

func TestWorkerDeliversOTPEmail(t *testing.T) {
	sender := &common.InMemoryEmail{}
	worker := Worker{Sender: sender, Logger: zerolog.Nop()}

	task, err := NewOTPEmailTask(OTPEmailPayload{
		Email:          "ravi@example.com",
		Name:           "Ravi",
		OTP:            "654321",
		ExpiresMinutes: 10,
	})
	require.NoError(t, err)

	require.NoError(t, worker.HandleOTPEmail(context.Background(), task))
	require.Len(t, sender.Outbox, 1)
	assert.Equal(t, "ravi@example.com", sender.Outbox[0].To)
	assert.Contains(t, sender.Outbox[0].Body, "654321")
	assert.Contains(t, sender.Outbox[0].Body, "10 minutes")
}

func TestWorkerSkipsRetryOnCorruptPayload(t *testing.T) {
	sender := &common.InMemoryEmail{}
	worker := Worker{Sender: sender, Logger: zerolog.Nop()}

	task := asynq.NewTask(TypeOTPEmail, []byte("{corrupt"))
	err := worker.HandleOTPEmail(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sender.Outbox)
}

func TestRenderOTPDefaults(t *testing.T) {
	subject, body := RenderOTP(OTPEmailPayload{OTP: "111111"})
	assert.Equal(t, "Your verification code", subject)
	assert.True(t, strings.Contains(body, "Hi there,"))
	assert.True(t, strings.Contains(body, "111111"))
}
