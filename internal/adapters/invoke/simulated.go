package invoke

import (
	"context"
	"fmt"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Simulated answers every prompt with a fixed-format text after a delay
// proportional to the model's compute requirement.
type Simulated struct {
	delayPerCompute time.Duration
}

func NewSimulated(delayPerCompute time.Duration) *Simulated {
	return &Simulated{delayPerCompute: delayPerCompute}
}

func (s *Simulated) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	delay := time.Duration(inv.Model.Resources.Compute * float64(s.delayPerCompute))
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Completion{}, ctx.Err()
		case <-timer.C:
		}
	}

	return domain.Completion{
		Text: fmt.Sprintf("[%s] Response to %s: %s", inv.Model.ID, category(inv.Model), excerpt(inv.Prompt, 80)),
	}, nil
}

func category(m domain.ModelDescriptor) domain.TaskCategory {
	if len(m.Capabilities) == 0 {
		return domain.CategoryTextGeneration
	}
	return m.Capabilities[0]
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
