package signal

import (
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func TestBroadcasterAppendOrderDelivery(t *testing.T) {
	b := NewBroadcaster()
	k := graph.New(graph.WithSink(b))

	id := k.Ensure("inputs.a")
	_ = k.Set(id, graph.Int(1))
	_ = k.Set(id, graph.Int(2))
	_ = k.Set(id, graph.Int(3))

	ch, unsub := b.Subscribe(0)
	defer unsub()

	var values []int64
	for i := 0; i < len(b.History()); i++ {
		rec := <-ch
		if rec.Kind != graph.SignalValue {
			continue
		}
		vd, ok := rec.Delta.(graph.ValueDelta)
		if !ok {
			continue
		}
		values = append(values, vd.NewValue.Int)
	}

	if len(values) != 3 || values[0] != 1 || values[1] != 2 || values[2] != 3 {
		t.Fatalf("replay order wrong: %v", values)
	}
}

func TestBroadcasterTailOnlySeesLiveRecords(t *testing.T) {
	b := NewBroadcaster()
	k := graph.New(graph.WithSink(b))

	id := k.Ensure("inputs.a")
	_ = k.Set(id, graph.Int(1)) // before Tail, must not be replayed

	ch, unsub := b.Tail()
	defer unsub()

	_ = k.Set(id, graph.Int(2))

	rec := <-ch
	vd := rec.Delta.(graph.ValueDelta)
	if vd.NewValue.Int != 2 {
		t.Fatalf("tail delivered stale record: %v", vd)
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra record: %v", extra)
	default:
	}
}

func TestBroadcasterSlowSubscriberDropped(t *testing.T) {
	b := NewBroadcaster()
	k := graph.New(graph.WithSink(b))
	id := k.Ensure("inputs.a")

	ch, _ := b.Subscribe(0)
	// Fill the channel's buffer without draining it, then force one more
	// append than capacity to trigger the drop.
	cap := cap(ch)
	for i := 0; i < cap+1; i++ {
		if err := k.Set(id, graph.Int(int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	if _, open := <-ch; !open {
		// Channel was closed: the subscriber was dropped as designed.
		return
	}
	// Otherwise draining must eventually see the channel closed once
	// capacity was exceeded.
	drained := 1
	for range ch {
		drained++
	}
	if drained > cap {
		t.Fatalf("slow subscriber received more than its buffer capacity: %d", drained)
	}
}

func TestBroadcasterCloseClosesSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch, _ := b.Subscribe(0)
	b.Close()

	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after Broadcaster.Close")
	}
}
