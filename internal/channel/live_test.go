package channel

import (
	"context"
	"testing"
	"time"

	"cometflow/models"
)

func sample(des string) models.LiveCoordinates {
	return models.LiveCoordinates{
		Designation: des,
		RA:          259.1,
		Dec:         -19.4,
		Timestamp:   time.Now().UTC(),
	}
}

func TestSendLiveAndReceive(t *testing.T) {
	c := NewChannels(2)
	defer c.Close()

	if !c.SendLive(context.Background(), sample("3I/ATLAS")) {
		t.Fatalf("send on empty buffer failed")
	}
	got := <-c.Live
	if got.Designation != "3I/ATLAS" {
		t.Errorf("unexpected message: %+v", got)
	}

	stats := c.GetStats()
	if stats.Sent != 1 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendLiveDropsWhenFull(t *testing.T) {
	c := NewChannels(1)
	defer c.Close()

	ctx := context.Background()
	if !c.SendLive(ctx, sample("a")) {
		t.Fatalf("first send failed")
	}
	if c.SendLive(ctx, sample("b")) {
		t.Fatalf("expected drop on full buffer")
	}

	stats := c.GetStats()
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendLiveCancelledContext(t *testing.T) {
	c := NewChannels(1)
	defer c.Close()

	// Fill the buffer, then cancel: the send must not block.
	ctx, cancel := context.WithCancel(context.Background())
	c.SendLive(ctx, sample("a"))
	cancel()
	done := make(chan struct{})
	go func() {
		c.SendLive(ctx, sample("b"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("send blocked on cancelled context")
	}
}
