package metering

import "testing"

func TestBufferDropsWhenFull(t *testing.T) {
	b := newBuffer(2)

	if !b.add(Event{Resource: "a"}) {
		t.Fatal("expected first add to succeed")
	}
	if !b.add(Event{Resource: "b"}) {
		t.Fatal("expected second add to succeed")
	}
	if b.add(Event{Resource: "c"}) {
		t.Fatal("expected third add to be dropped at capacity")
	}
	if b.len() != 2 {
		t.Fatalf("expected length 2, got %d", b.len())
	}
}

func TestBufferDrainPreservesOrder(t *testing.T) {
	b := newBuffer(10)
	b.add(Event{Resource: "a"})
	b.add(Event{Resource: "b"})
	b.add(Event{Resource: "c"})

	drained := b.drain(2)
	if len(drained) != 2 || drained[0].Resource != "a" || drained[1].Resource != "b" {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if b.len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", b.len())
	}
}

func TestBufferRequeueRespectsCapacity(t *testing.T) {
	b := newBuffer(3)
	b.add(Event{Resource: "existing"})

	requeued := b.requeue([]Event{{Resource: "x"}, {Resource: "y"}, {Resource: "z"}})
	if requeued != 2 {
		t.Fatalf("expected 2 of 3 to fit, got %d", requeued)
	}
	if b.len() != 3 {
		t.Fatalf("expected buffer full at 3, got %d", b.len())
	}
}
