package progress

import "testing"

func TestBroker_PublishAndSubscribe(t *testing.T) {
	b := NewBroker()
	pub := b.Start("run-1")

	ch, ok := b.Subscribe("run-1")
	if !ok {
		t.Fatal("expected run-1 to be subscribable")
	}

	pub.Publish(Event{Stage: "init", Current: 0, Total: 10})
	pub.Publish(Event{Stage: "done", Current: 10, Total: 10})

	var got []Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[1].Stage != "done" {
		t.Fatalf("expected terminal stage done, got %q", got[1].Stage)
	}
}

func TestBroker_Subscribe_UnknownRun(t *testing.T) {
	b := NewBroker()
	if _, ok := b.Subscribe("missing"); ok {
		t.Fatal("expected unknown run to not be subscribable")
	}
}

func TestPublisher_PublishAfterTerminalDoesNotPanic(t *testing.T) {
	b := NewBroker()
	pub := b.Start("run-2")
	pub.Publish(Event{Stage: "done"})
	pub.Publish(Event{Stage: "error", Message: "late event"})
}
