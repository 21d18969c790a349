package focus

import (
	"context"
	"errors"

	"github.com/code-100-precent/FocusBuddy/internal/checkin"
	"github.com/code-100-precent/FocusBuddy/pkg/events"
)

// BusNotifier shows check-ins in the UI by publishing them on the bus.
type BusNotifier struct {
	Bus *events.Bus
}

func (n BusNotifier) Notify(_ context.Context, sessionID, prompt string) error {
	n.Bus.PublishEvent(events.TopicCheckInPrompt, sessionID, map[string]string{"prompt": prompt}, "checkin")
	return nil
}

// Notifiers delivers through every notifier and joins their errors.
type Notifiers []checkin.Notifier

func (ns Notifiers) Notify(ctx context.Context, sessionID, prompt string) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, sessionID, prompt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
