package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	err  error
	sent []EmailMessage
}

func (f *fakeSender) Send(_ context.Context, msg EmailMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestSecurityAlertSendsEmail(t *testing.T) {
	sender := &fakeSender{}
	svc := NewAlertService(sender, "oncall@example.org", nil)

	svc.SecurityAlert(context.Background(), Alert{
		RequestID:    "req-1",
		SecurityMode: "STRICT_MODE",
		PatientID:    "P200",
		RiskScore:    95,
		AttackTypes:  []string{"prompt_injection"},
		Reason:       "injection detected",
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "oncall@example.org", msg.To)
	assert.Contains(t, msg.Subject, "risk 95")
	assert.Contains(t, msg.Body, "req-1")
	assert.Contains(t, msg.Body, "prompt_injection")
}

func TestSecurityAlertSwallowsSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	svc := NewAlertService(sender, "oncall@example.org", nil)

	// Must not panic or propagate; alert failure never aborts a pipeline.
	svc.SecurityAlert(context.Background(), Alert{RequestID: "req-1"})

	assert.Len(t, sender.sent, 1)
}

func TestSecurityAlertDisabledWithoutSender(t *testing.T) {
	svc := NewAlertService(nil, "oncall@example.org", nil)
	svc.SecurityAlert(context.Background(), Alert{RequestID: "req-1"})

	svc = NewAlertService(&fakeSender{}, "", nil)
	svc.SecurityAlert(context.Background(), Alert{RequestID: "req-1"})
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *AlertService
	svc.SecurityAlert(context.Background(), Alert{})
}
