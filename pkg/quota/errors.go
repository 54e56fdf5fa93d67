// Package quota implements QuotaGuard, the per-IP sliding-window and
// per-user monthly admission check the orchestrator runs before creating an
// agent.
package quota

import (
	"errors"
	"fmt"

	"github.com/ariana-dot-dev/ariana-sub004/pkg/models"
)

// ErrQuotaExceeded is the sentinel wrapped by every *Error returned from
// Guard.Admit.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Error carries the structured detail the UI needs to explain which limit
// was hit.
type Error struct {
	LimitType      models.LimitType
	Current        int
	Max            int
	ResourceType   models.ResourceKind
	IsMonthlyLimit bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit for %s (%d/%d)", e.LimitType, e.ResourceType, e.Current, e.Max)
}

func (e *Error) Unwrap() error { return ErrQuotaExceeded }
