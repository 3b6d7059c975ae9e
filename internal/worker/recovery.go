package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sumire/autopost/internal/domain"
)

// OrphanStore lists and fails rows left processing by a dead process.
type OrphanStore interface {
	ListProcessing(ctx context.Context) ([]string, error)
	FailProcessing(ctx context.Context, id string, message string) (bool, error)
}

// RecoveryTarget names one store to scan.
type RecoveryTarget struct {
	Name  string
	Store OrphanStore
}

// Recovery fails orphaned jobs. It must run before any poller starts.
type Recovery struct {
	targets []RecoveryTarget
	logs    JobLog
	logger  *slog.Logger
}

func NewRecovery(logs JobLog, logger *slog.Logger, targets ...RecoveryTarget) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{targets: targets, logs: logs, logger: logger}
}

// Run returns the number of recovered jobs per target name.
func (r *Recovery) Run(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(r.targets))
	for _, t := range r.targets {
		ids, err := t.Store.ListProcessing(ctx)
		if err != nil {
			return counts, fmt.Errorf("recover %s: %w", t.Name, err)
		}
		for _, id := range ids {
			// log before the terminal write
			r.logs.Error(ctx, id, domain.InterruptedByRestart)
			ok, err := t.Store.FailProcessing(ctx, id, domain.InterruptedByRestart)
			if err != nil {
				return counts, fmt.Errorf("recover %s %s: %w", t.Name, id, err)
			}
			if ok {
				counts[t.Name]++
			}
		}
		if counts[t.Name] > 0 {
			r.logger.Warn("recovered orphaned jobs", "store", t.Name, "count", counts[t.Name])
		}
	}
	return counts, nil
}
