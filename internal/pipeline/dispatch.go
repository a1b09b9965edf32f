package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"plate-gate/internal/actuator"
	"plate-gate/internal/domain/anpr"
	"plate-gate/internal/notify"
)

// Recorder persists decisions for later review.
type Recorder interface {
	RecordDecision(ctx context.Context, decision anpr.Decision, event anpr.DetectionEvent) error
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(context.Context, anpr.Decision, anpr.DetectionEvent) error {
	return nil
}

// Dispatcher carries out a decision: actuation first, then notification,
// then recording. Collaborator failures are logged and never fed back into
// the pipeline.
type Dispatcher struct {
	gate     actuator.Gate
	alarm    actuator.Alarm
	notifier notify.Notifier
	recorder Recorder
	log      zerolog.Logger
}

func NewDispatcher(gate actuator.Gate, alarm actuator.Alarm, notifier notify.Notifier, recorder Recorder, log zerolog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		gate:     gate,
		alarm:    alarm,
		notifier: notifier,
		recorder: recorder,
		log:      log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, decision anpr.Decision, event anpr.DetectionEvent) {
	if decision.Dropped != "" {
		return
	}

	switch decision.Action {
	case anpr.ActionOpenGate:
		if err := d.gate.OpenGate(ctx, decision.Plate); err != nil {
			d.log.Error().Err(err).Str("plate", decision.Plate).Msg("failed to open gate")
		}
	case anpr.ActionTriggerAlarm:
		if err := d.alarm.Trigger(ctx, decision.Plate, "deny_list"); err != nil {
			d.log.Error().Err(err).Str("plate", decision.Plate).Msg("failed to trigger alarm")
		}
	}

	if decision.Notify {
		msg := notify.Message{Text: decision.Caption, Group: decision.Group, Route: decision.Route}
		var err error
		if decision.SendPhoto && len(event.Snapshot) > 0 {
			err = d.notifier.SendPhoto(ctx, event.Snapshot, msg)
		} else {
			err = d.notifier.SendText(ctx, msg)
		}
		if err != nil {
			d.log.Error().Err(err).Str("decision_id", decision.ID.String()).Msg("failed to send notification")
		}
	}

	if err := d.recorder.RecordDecision(ctx, decision, event); err != nil {
		d.log.Error().Err(err).Str("decision_id", decision.ID.String()).Msg("failed to record decision")
	}
}
