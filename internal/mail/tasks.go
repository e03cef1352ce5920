package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/scoopstack/backend-scoopstack/internal/common"
)

// TypeOTPEmail is the asynq task type for one-time passcode delivery.
const TypeOTPEmail = "mail:otp"

// OTPEmailPayload is the serialized body of an OTP delivery task.
type OTPEmailPayload struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	OTP            string `json:"otp"`
	ExpiresMinutes int    `json:"expiresMinutes"`
}

// NewOTPEmailTask builds the asynq task for an OTP delivery.
func NewOTPEmailTask(payload OTPEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal otp payload: %w", err)
	}
	return asynq.NewTask(TypeOTPEmail, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer pushes mail tasks onto the queue. It satisfies auth.OTPMailer.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueOTP queues an OTP email for asynchronous delivery.
func (e Enqueuer) EnqueueOTP(ctx context.Context, email, name, otp string, expiresIn time.Duration) error {
	task, err := NewOTPEmailTask(OTPEmailPayload{
		Email:          email,
		Name:           name,
		OTP:            otp,
		ExpiresMinutes: int(expiresIn.Minutes()),
	})
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue otp mail: %w", err)
	}
	return nil
}

// Worker consumes mail tasks and delivers them through the configured sender.
type Worker struct {
	Sender common.EmailSender
	Logger zerolog.Logger
}

// HandleOTPEmail processes a single OTP delivery task.
func (w Worker) HandleOTPEmail(ctx context.Context, task *asynq.Task) error {
	var payload OTPEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode otp payload: %w", asynq.SkipRetry)
	}
	subject, body := RenderOTP(payload)
	if err := w.Sender.Send(payload.Email, subject, body); err != nil {
		w.Logger.Error().Err(err).Str("to", payload.Email).Msg("otp email delivery failed")
		return err
	}
	w.Logger.Info().Str("to", payload.Email).Msg("otp email delivered")
	return nil
}

// RenderOTP produces the subject and plain-text body for an OTP email.
func RenderOTP(payload OTPEmailPayload) (subject, body string) {
	subject = "Your verification code"
	name := payload.Name
	if name == "" {
		name = "there"
	}
	minutes := payload.ExpiresMinutes
	if minutes <= 0 {
		minutes = 10
	}
	body = fmt.Sprintf(
		"Hi %s,\n\nYour verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, you can ignore this email.\n",
		name, payload.OTP, minutes,
	)
	return subject, body
}

// NewMux registers the mail task handlers on an asynq mux.
func NewMux(worker Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOTPEmail, worker.HandleOTPEmail)
	return mux
}
