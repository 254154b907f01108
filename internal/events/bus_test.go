package events

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBusDelivers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch1, cancel1 := bus.Subscribe(4)
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel1()
	defer cancel2()

	bus.Publish(Event{Type: JobRegistered, JobID: 3})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != JobRegistered || e.JobID != 3 {
				t.Errorf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Errorf("subscriber %d: event time not set", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(nil)
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: TickSkipped, JobID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	published, dropped := bus.Stats()
	if published != 100 || dropped != 99 {
		t.Errorf("published=%d dropped=%d, want 100 and 99", published, dropped)
	}
}

func TestBusCancel(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
	bus.Publish(Event{Type: JobRemoved})
}

func TestBusClose(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	bus.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after bus close")
	}

	late, _ := bus.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription on a closed bus should be closed")
	}
	bus.Publish(Event{Type: StateChanged})
}

func TestBusConcurrent(t *testing.T) {
	bus := NewBus(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := bus.Subscribe(8)
			bus.Publish(Event{Type: RunStarted})
			<-ch
			cancel()
		}()
	}
	wg.Wait()
}
