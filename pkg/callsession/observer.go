package callsession

import (
	"github.com/code-100-precent/LingCollect/pkg/events"
)

// EventObserver publishes every transition on bus as events.CallStateChanged
func EventObserver(bus *events.EventBus) Observer {
	return func(s *CallSession, tr Transition) {
		bus.Publish(events.Event{
			Type:      events.CallStateChanged,
			Timestamp: tr.At,
			Source:    "callsession",
			Data: map[string]interface{}{
				"room":   s.RoomName,
				"mode":   string(s.Mode),
				"from":   string(tr.From),
				"to":     string(tr.To),
				"reason": tr.Reason,
			},
		})
	}
}
