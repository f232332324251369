package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tablog/depresolve/catalog"
)

var (
	ErrInvalidSpec = errors.New("invalid dependency specification")
	ErrNotFound    = errors.New("dependency not found")
	// ErrPartialArtifact means a strategy succeeded but didn't yield every role the dependency is expected to
	// publish. The strategy counts as failed.
	ErrPartialArtifact = errors.New("partial artifact")
)

// Attempt records one strategy run.
type Attempt struct {
	Time     time.Time
	Dep      string
	Version  string
	Strategy StrategyName
	Outcome  OutcomeKind
	// Reason is the skip reason or the error message.
	Reason   string
	Duration time.Duration
	err      error
}

func (a Attempt) String() string {
	if a.Reason == "" {
		return fmt.Sprintf("%v: %v", a.Strategy, a.Outcome)
	}
	return fmt.Sprintf("%v: %v: %v", a.Strategy, a.Outcome, a.Reason)
}

// Recorder receives every attempt, e.g. to keep a history.
type Recorder interface {
	Record(a Attempt) error
}

// ResolutionError is returned when no strategy succeeded.
type ResolutionError struct {
	Name     string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("no acquisition strategy succeeded for dependency %q (%v)", e.Name, strings.Join(parts, "; "))
}

// Unwrap yields ErrNotFound followed by the errors of failed attempts.
func (e *ResolutionError) Unwrap() []error {
	errs := []error{ErrNotFound}
	for _, a := range e.Attempts {
		if a.err != nil {
			errs = append(errs, a.err)
		}
	}
	return errs
}

// Resolver tries strategies in priority order and publishes the first success.
type Resolver struct {
	Catalog    *catalog.Catalog
	Strategies []Strategy
	Publisher  *Publisher
	// Recorder is optional.
	Recorder Recorder
	Logger   *slog.Logger
}

// New returns a Resolver running Vendored, Installed and RemoteFetch, in that order.
func New(cat *catalog.Catalog, env *Env) *Resolver {
	return &Resolver{
		Catalog: cat,
		Strategies: []Strategy{
			&VendoredStrategy{Env: env},
			&InstalledStrategy{Env: env, Catalog: cat},
			&RemoteFetchStrategy{Env: env},
		},
		Publisher: &Publisher{Env: env},
		Logger:    env.Logger,
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Resolve makes the dependency `name` available and returns its artifacts. A dependency already in `state` is
// returned as recorded, without running any strategy.
func (r *Resolver) Resolve(ctx context.Context, state *State, name string, overrides Overrides) (Artifacts, error) {
	entry := r.Catalog.Lookup(name)
	spec, err := NewDependencySpec(entry, overrides)
	if err != nil {
		return nil, err
	}
	if prev, ok := state.Get(name); ok {
		if prev.Spec != spec {
			r.logger().Warn("dependency already resolved with other coordinates", "dep", name,
				"resolved", prev.Spec.String(), "requested", spec.String())
		}
		return prev.Artifacts, nil
	}

	logger := r.logger().With("dep", spec.String())
	resErr := &ResolutionError{Name: name}
	for _, strategy := range r.Strategies {
		start := time.Now()
		outcome := strategy.Acquire(ctx, spec, entry)
		var artifacts Artifacts
		if outcome.Kind == Succeeded {
			artifacts, err = r.Publisher.Publish(entry, outcome)
			if err != nil {
				outcome = failed(err)
			}
		}
		attempt := Attempt{
			Time:     start,
			Dep:      name,
			Version:  spec.Version,
			Strategy: strategy.Name(),
			Outcome:  outcome.Kind,
			Reason:   outcome.Reason,
			Duration: time.Since(start),
			err:      outcome.Err,
		}
		if outcome.Err != nil {
			attempt.Reason = outcome.Err.Error()
		}
		r.record(logger, attempt)

		if outcome.Kind == Succeeded {
			state.put(name, Entry{Spec: spec, Strategy: strategy.Name(), Artifacts: artifacts})
			return artifacts.Clone(), nil
		}
		resErr.Attempts = append(resErr.Attempts, attempt)
		if ctx.Err() != nil {
			// Later strategies would fail the same way.
			break
		}
	}
	return nil, resErr
}

func (r *Resolver) record(logger *slog.Logger, a Attempt) {
	switch a.Outcome {
	case Succeeded:
		logger.Info("resolved", "strategy", a.Strategy, "duration", a.Duration)
	case Skipped:
		logger.Debug("strategy skipped", "strategy", a.Strategy, "reason", a.Reason)
	default:
		logger.Warn("strategy failed", "strategy", a.Strategy, "err", a.Reason)
	}
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.Record(a); err != nil {
		logger.Warn("can't record attempt", "err", err)
	}
}
