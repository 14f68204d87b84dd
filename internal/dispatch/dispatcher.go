// Package dispatch classifies inbound frames and routes each to the
// component that owns its state: content and confirmations to the
// conversation store, error frames to the notifier. Unknown frame types
// are dropped; the dispatcher never fails on them.
package dispatch

import (
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/model"
	"github.com/SueMuBai/nebula/internal/wire"
)

// Store is the conversation-store surface the dispatcher feeds.
type Store interface {
	// ReceiveInbound appends a pushed message to the conversation keyed
	// by conversationID.
	ReceiveInbound(conversationID int64, m model.Message)
	// Confirm resolves a pending optimistic message to delivered or failed.
	Confirm(messageID string, delivered bool, at time.Time)
}

// Notifier surfaces server error frames to the user-facing collaborator.
type Notifier interface {
	Notify(message string)
}

type Dispatcher struct {
	store    Store
	notifier Notifier
}

func New(store Store, notifier Notifier) *Dispatcher {
	return &Dispatcher{store: store, notifier: notifier}
}

// Dispatch routes one frame to exactly one handler. Frames for the same
// conversation arrive on a single pump goroutine, so calling Dispatch
// from it preserves per-conversation order.
func (d *Dispatcher) Dispatch(f wire.Frame) {
	switch {
	case f.Type.Content():
		conversationID := f.From
		if f.ChatType == wire.ChatGroup {
			conversationID = f.To
		}
		d.store.ReceiveInbound(conversationID, f.AsMessage())
	case f.Type == wire.TypeDeliveryConfirmation:
		d.store.Confirm(f.MessageID, f.Delivered(), f.Time())
	case f.Type == wire.TypeError:
		d.notifier.Notify(f.Message)
	default:
		logger.Debugf("dispatch: dropping unknown frame type %q", f.Type)
	}
}
