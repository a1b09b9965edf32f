package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"plate-gate/internal/domain/anpr"
)

const DefaultQueueSize = 64

var (
	ErrQueueFull = errors.New("pipeline queue full")
	ErrStopped   = errors.New("pipeline stopped")
)

type job struct {
	event  anpr.DetectionEvent
	result chan anpr.Decision
}

type dispatchJob struct {
	decision anpr.Decision
	event    anpr.DetectionEvent
}

// Runner is the single consumption point for detection events. Producers
// may call Submit concurrently; only the Run goroutine touches pipeline
// state. Dispatch happens on a second goroutine so actuator and Telegram
// latency never delays the next decision.
type Runner struct {
	pipeline   *Pipeline
	dispatcher *Dispatcher
	jobs       chan job
	dispatches chan dispatchJob
	done       chan struct{}
	log        zerolog.Logger
}

func NewRunner(p *Pipeline, dispatcher *Dispatcher, queueSize int, log zerolog.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Runner{
		pipeline:   p,
		dispatcher: dispatcher,
		jobs:       make(chan job, queueSize),
		dispatches: make(chan dispatchJob, queueSize),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Submit enqueues event and waits for its decision.
func (r *Runner) Submit(ctx context.Context, event anpr.DetectionEvent) (anpr.Decision, error) {
	j := job{event: event, result: make(chan anpr.Decision, 1)}

	select {
	case <-r.done:
		return anpr.Decision{}, ErrStopped
	default:
	}

	select {
	case r.jobs <- j:
	default:
		return anpr.Decision{}, ErrQueueFull
	}

	select {
	case d := <-j.result:
		return d, nil
	case <-ctx.Done():
		return anpr.Decision{}, ctx.Err()
	case <-r.done:
		return anpr.Decision{}, ErrStopped
	}
}

// Run consumes events until ctx is cancelled, then waits for pending
// dispatches to finish.
func (r *Runner) Run(ctx context.Context) error {
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for dj := range r.dispatches {
			if r.dispatcher != nil {
				r.dispatcher.Dispatch(context.WithoutCancel(ctx), dj.decision, dj.event)
			}
		}
	}()

	defer func() {
		close(r.done)
		close(r.dispatches)
		<-dispatched
	}()

	r.log.Info().Int("queue_size", cap(r.jobs)).Msg("decision pipeline started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("decision pipeline stopped")
			return nil
		case j := <-r.jobs:
			d := r.pipeline.Process(j.event)
			j.result <- d
			r.dispatches <- dispatchJob{decision: d, event: j.event}
		}
	}
}
