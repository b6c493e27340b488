package writer

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_SendReceiveInOrder(t *testing.T) {
	buf := NewGrowableBuffer[int](4, 0)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.ResizeCount < 3 {
		t.Errorf("ResizeCount = %d, expected at least 3 resizes", stats.ResizeCount)
	}

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive() on empty buffer returned true")
	}
}

func TestGrowableBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	for i := 0; i < 6; i++ {
		buf.Send(i)
	}
	if buf.Cap() != 10 {
		t.Fatalf("Cap() = %d before 70%%, want 10", buf.Cap())
	}

	buf.Send(6)
	if buf.Cap() != 20 {
		t.Errorf("Cap() = %d after 70%%, want 20", buf.Cap())
	}
}

func TestGrowableBuffer_MaxCapacityDropsOldest(t *testing.T) {
	buf := NewGrowableBuffer[int](2, 4)

	for i := 1; i <= 6; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", stats.Capacity)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}

	got := buf.DrainTo(0)
	want := []int{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("DrainTo(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %d, want %d", i, got[i], want[i])
		}
	}

	if s := buf.Stats(); s.TotalSent != 4 || s.TotalReceived != 6 {
		t.Errorf("stats = %+v, want TotalSent 4 TotalReceived 6", s)
	}
}

func TestGrowableBuffer_WrapAroundGrow(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	for i := 1; i <= 6; i++ {
		buf.Send(i)
	}
	buf.DrainTo(5)

	// Tail wraps past the end, then the 7th live item forces a grow.
	for i := 7; i <= 12; i++ {
		buf.Send(i)
	}
	if buf.Cap() != 20 {
		t.Fatalf("Cap() = %d, want 20", buf.Cap())
	}

	for want := 6; want <= 12; want++ {
		got, ok := buf.TryReceive()
		if !ok || got != want {
			t.Fatalf("TryReceive() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestGrowableBuffer_ReceiveBatch(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	done := make(chan []int, 1)
	go func() {
		done <- buf.ReceiveBatch(3)
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(1)

	select {
	case items := <-done:
		if len(items) != 1 || items[0] != 1 {
			t.Errorf("ReceiveBatch() = %v, want [1]", items)
		}
	case <-time.After(time.Second):
		t.Fatal("ReceiveBatch did not wake on Send")
	}

	for i := 0; i < 5; i++ {
		buf.Send(i)
	}
	if items := buf.ReceiveBatch(3); len(items) != 3 {
		t.Errorf("ReceiveBatch(3) returned %d items, want 3", len(items))
	}
	if buf.Len() != 2 {
		t.Errorf("Len() = %d, want 2", buf.Len())
	}
}

func TestGrowableBuffer_Close(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)
	buf.Send(1)
	buf.Close()

	if buf.Send(2) {
		t.Error("Send should return false after Close")
	}

	val, ok := buf.Receive()
	if !ok || val != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", val, ok)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
	if items := buf.ReceiveBatch(10); items != nil {
		t.Errorf("ReceiveBatch() = %v, want nil after close", items)
	}
}

func TestGrowableBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)

	done := make(chan bool, 1)
	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestGrowableBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10, 0)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
		buf.Close()
	}()

	var received []int
	for {
		items := buf.ReceiveBatch(64)
		if items == nil {
			break
		}
		received = append(received, items...)
	}
	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("received[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestNewGrowableBuffer_Capacity(t *testing.T) {
	if got := NewGrowableBuffer[int](0, 0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", got)
	}
	if got := NewGrowableBuffer[int](-5, 0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1 for negative initial capacity", got)
	}
	if got := NewGrowableBuffer[int](64, 16).Cap(); got != 16 {
		t.Errorf("Cap() = %d, want initial clamped to max 16", got)
	}
}
