// Package memory records run reports in-memory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Notifier stores published reports for inspection.
type Notifier struct {
	mu      sync.RWMutex
	reports []vacancy.RunReport
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Publish records report and returns a pseudo message ID.
func (n *Notifier) Publish(_ context.Context, report vacancy.RunReport) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	return fmt.Sprintf("memory-%d", len(n.reports)), nil
}

// Reports returns a copy of the recorded reports.
func (n *Notifier) Reports() []vacancy.RunReport {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]vacancy.RunReport, len(n.reports))
	copy(out, n.reports)
	return out
}
