package operator

import (
	"context"
	"errors"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// LogOperator writes surfaced escalations to a logger. Urgent escalations
// are logged at warn level.
type LogOperator struct {
	logger logging.Logger
}

// NewLogOperator creates a LogOperator.
func NewLogOperator(logger logging.Logger) *LogOperator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogOperator{logger: logger}
}

// Surface implements core.Operator.
func (o *LogOperator) Surface(_ context.Context, esc core.Escalation) error {
	args := []any{
		"escalation_id", esc.ID,
		"origin", esc.OriginAgentID,
		"kind", string(esc.Kind),
		"classification", string(esc.Classification),
		"path", esc.Path,
		"content", esc.Content,
	}
	if esc.Classification == core.ClassificationUrgent {
		o.logger.Warn("Escalation needs operator", args...)
		return nil
	}
	o.logger.Info("Escalation needs operator", args...)
	return nil
}

// Multi surfaces to every operator and joins their errors.
type Multi []core.Operator

// Surface implements core.Operator.
func (m Multi) Surface(ctx context.Context, esc core.Escalation) error {
	var errs []error
	for _, op := range m {
		if err := op.Surface(ctx, esc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
