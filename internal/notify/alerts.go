package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Alert carries the context of a blocked request for the operator email.
type Alert struct {
	RequestID    string
	SecurityMode string
	PatientID    string
	RiskScore    int
	AttackTypes  []string
	Reason       string
}

// AlertService sends security alerts to the on-call operator. Delivery is
// strictly best effort: a failed or unconfigured sender logs and returns,
// it never propagates into the request pipeline.
type AlertService struct {
	email    EmailSender
	operator string
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewAlertService builds the alert service. A nil sender or empty operator
// address disables alerting; SecurityAlert then no-ops.
func NewAlertService(email EmailSender, operatorEmail string, logger *logging.Logger) *AlertService {
	if logger == nil {
		logger = logging.Default()
	}
	svc := &AlertService{
		email:    email,
		operator: operatorEmail,
		tracer:   otel.Tracer("aegisgraph.internal.notify"),
		logger:   logger.Component("alerts"),
	}
	if email == nil || operatorEmail == "" {
		svc.logger.Info("security alerting disabled, no sender or operator configured")
	}
	return svc
}

// SecurityAlert notifies the operator that a request was blocked. Errors are
// logged and swallowed.
func (s *AlertService) SecurityAlert(ctx context.Context, alert Alert) {
	if s == nil {
		return
	}
	_, span := s.tracer.Start(ctx, "notify.security_alert")
	defer span.End()

	if s.email == nil || s.operator == "" {
		s.logger.Debug("security alert skipped, alerting disabled", "request_id", alert.RequestID)
		return
	}

	msg := EmailMessage{
		To:      s.operator,
		Subject: fmt.Sprintf("[AegisGraph] Request blocked (risk %d)", alert.RiskScore),
		Body:    alertBody(alert),
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.email.Send(sendCtx, msg); err != nil {
		s.logger.Warn("security alert delivery failed",
			"request_id", alert.RequestID, "error", err)
	}
}

func alertBody(alert Alert) string {
	attacks := "none detected"
	if len(alert.AttackTypes) > 0 {
		attacks = strings.Join(alert.AttackTypes, ", ")
	}
	return fmt.Sprintf(
		"Security alert: request blocked.\n\nRequest ID: %s\nSecurity mode: %s\nPatient ID: %s\nRisk score: %d\nAttack types: %s\nReason: %s\nTime: %s\n",
		alert.RequestID, alert.SecurityMode, alert.PatientID, alert.RiskScore,
		attacks, alert.Reason, time.Now().UTC().Format(time.RFC3339))
}
