package dispatch

import (
	"testing"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
	"github.com/SueMuBai/nebula/internal/wire"
)

type fakeStore struct {
	inbound []struct {
		convID int64
		msg    model.Message
	}
	confirms []struct {
		messageID string
		delivered bool
		at        time.Time
	}
}

func (f *fakeStore) ReceiveInbound(conversationID int64, m model.Message) {
	f.inbound = append(f.inbound, struct {
		convID int64
		msg    model.Message
	}{conversationID, m})
}

func (f *fakeStore) Confirm(messageID string, delivered bool, at time.Time) {
	f.confirms = append(f.confirms, struct {
		messageID string
		delivered bool
		at        time.Time
	}{messageID, delivered, at})
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(message string) {
	f.messages = append(f.messages, message)
}

func TestDispatchContentFrames(t *testing.T) {
	for _, typ := range []wire.Type{wire.TypeText, wire.TypeVoice, wire.TypeImg} {
		store := &fakeStore{}
		d := New(store, &fakeNotifier{})

		d.Dispatch(wire.Frame{
			Type:      typ,
			MessageID: "m1",
			From:      7,
			To:        1,
			Content:   "payload",
			Timestamp: 1700000000000,
		})

		if len(store.inbound) != 1 {
			t.Fatalf("%s: inbound count = %d, want 1", typ, len(store.inbound))
		}
		got := store.inbound[0]
		if got.convID != 7 {
			t.Errorf("%s: conversation id = %d, want sender 7", typ, got.convID)
		}
		if got.msg.Kind != model.Kind(typ) {
			t.Errorf("%s: kind = %s", typ, got.msg.Kind)
		}
		if got.msg.Status != model.StatusDelivered {
			t.Errorf("%s: inbound status = %s, want delivered", typ, got.msg.Status)
		}
	}
}

func TestDispatchGroupContentKeysByRecipient(t *testing.T) {
	store := &fakeStore{}
	d := New(store, &fakeNotifier{})

	d.Dispatch(wire.Frame{
		Type:     wire.TypeText,
		From:     7,
		To:       42,
		ChatType: wire.ChatGroup,
		Content:  "to the group",
	})

	if len(store.inbound) != 1 {
		t.Fatalf("inbound count = %d, want 1", len(store.inbound))
	}
	if store.inbound[0].convID != 42 {
		t.Errorf("group conversation id = %d, want group 42", store.inbound[0].convID)
	}
}

func TestDispatchDeliveryConfirmation(t *testing.T) {
	store := &fakeStore{}
	d := New(store, &fakeNotifier{})

	yes := true
	d.Dispatch(wire.Frame{
		Type:      wire.TypeDeliveryConfirmation,
		MessageID: "m1",
		Success:   &yes,
		Timestamp: 1700000000000,
	})
	no := false
	d.Dispatch(wire.Frame{
		Type:      wire.TypeDeliveryConfirmation,
		MessageID: "m2",
		Success:   &no,
	})

	if len(store.confirms) != 2 {
		t.Fatalf("confirm count = %d, want 2", len(store.confirms))
	}
	if !store.confirms[0].delivered || store.confirms[0].messageID != "m1" {
		t.Errorf("first confirm = %+v", store.confirms[0])
	}
	if store.confirms[1].delivered {
		t.Error("absent or false success must resolve to not delivered")
	}
}

func TestDispatchErrorFrame(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(&fakeStore{}, notifier)

	d.Dispatch(wire.Frame{Type: wire.TypeError, Message: "recipient not found"})

	if len(notifier.messages) != 1 || notifier.messages[0] != "recipient not found" {
		t.Fatalf("notifier got %v", notifier.messages)
	}
}

func TestDispatchUnknownTypeIsDropped(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	d := New(store, notifier)

	d.Dispatch(wire.Frame{Type: "presence", From: 7})

	if len(store.inbound) != 0 || len(store.confirms) != 0 || len(notifier.messages) != 0 {
		t.Fatal("unknown frame type must not reach any handler")
	}
}
