package reconcilers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// OutputWriter persists a single named output.
type OutputWriter interface {
	Write(name, destination, value string) error
}

// Reporter turns an Outcome into the process result.
type Reporter struct {
	Writer OutputWriter
}

// NewReporter returns a reporter writing outputs through w.
func NewReporter(w OutputWriter) *Reporter {
	return &Reporter{Writer: w}
}

// Report writes the outputs of a successful outcome to their declared destinations
// and returns nil, or returns the typed error matching the outcome. Outputs are
// never written for unsuccessful outcomes.
func (r *Reporter) Report(ctx context.Context, outcome Outcome, destinations map[string]string) error {
	logger := log.FromContext(ctx)
	switch outcome.Kind {
	case OutcomeSucceeded:
	case OutcomeFatalInit:
		return &InitError{Err: errOrUnknown(outcome.Err)}
	default:
		return &JobFailedError{Handle: outcome.Handle, Err: errOrUnknown(outcome.Err)}
	}

	names := make([]string, 0, len(destinations))
	for name := range destinations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := outcome.Outputs[name]
		if !ok {
			return &OutputWriteError{Output: name, Err: errors.New("job produced no value")}
		}
		if err := r.Writer.Write(name, destinations[name], value); err != nil {
			return &OutputWriteError{Output: name, Err: err}
		}
		logger.V(1).Info("wrote output", "name", name, "destination", destinations[name])
	}
	logger.Info("outputs written", "count", len(names))
	return nil
}

func errOrUnknown(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("no reason recorded")
}
