package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rsyarsya/pneuscope/internal/email"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/pkg/messaging"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(
		`<p>Hello {{.Name}},</p><p>Your PneuScope {{.Role}} account is ready.</p>`))
	riskAlertTmpl = template.Must(template.New("risk").Parse(
		`<p>A recent assessment for <strong>{{.PatientName}}</strong> scored a respiratory risk of ` +
			`<strong>{{printf "%.0f" .Percent}}%</strong>.</p><p>Please contact your doctor.</p>`))
)

// Service turns domain events into emails.
type Service struct {
	emailSvc email.Service
}

func NewService(emailSvc email.Service) *Service {
	return &Service{emailSvc: emailSvc}
}

// Run consumes the notification channels until ctx is cancelled.
func (s *Service) Run(ctx context.Context, broker messaging.Broker) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return messaging.Consume(ctx, broker, model.EventUserRegistered, s.HandleUserRegistered)
	})
	g.Go(func() error {
		return messaging.Consume(ctx, broker, model.EventAssessmentCreated, s.HandleAssessmentCreated)
	})
	return g.Wait()
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func (s *Service) HandleUserRegistered(ctx context.Context, payload []byte) error {
	var ev model.UserRegisteredPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("invalid %s payload: %w", model.EventUserRegistered, err)
	}

	body, err := render(welcomeTmpl, ev)
	if err != nil {
		return err
	}
	return s.emailSvc.Send(ctx, &model.Notification{
		To:      ev.Email,
		Subject: "Welcome to PneuScope",
		Body:    body,
		HTML:    true,
	})
}

// HandleAssessmentCreated alerts the linked parent about high-risk
// assessments. Other assessments are ignored.
func (s *Service) HandleAssessmentCreated(ctx context.Context, payload []byte) error {
	var ev model.AssessmentCreatedPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("invalid %s payload: %w", model.EventAssessmentCreated, err)
	}
	if !ev.HighRisk || ev.ParentEmail == "" {
		return nil
	}

	body, err := render(riskAlertTmpl, struct {
		PatientName string
		Percent     float64
	}{ev.PatientName, ev.RiskScore * 100})
	if err != nil {
		return err
	}

	log.Info().Str("assessment_id", ev.AssessmentID).Msg("Sending high-risk alert")
	return s.emailSvc.Send(ctx, &model.Notification{
		To:      ev.ParentEmail,
		Subject: fmt.Sprintf("High respiratory risk detected for %s", ev.PatientName),
		Body:    body,
		HTML:    true,
	})
}
