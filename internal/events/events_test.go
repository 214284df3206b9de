package events

import (
	"strconv"
	"testing"
	"time"

	"github.com/ferrex-media/ferrex/internal/ids"
)

func TestSubscribeReceivesPublish(t *testing.T) {
	b := NewBus(4)
	ch, cancel := b.Subscribe()
	defer cancel()

	iid := ids.NewImageID()
	b.PublishImageReady(iid, "poster_medium", "tok123")

	select {
	case e := <-ch:
		if e.ImageReady == nil || e.ImageReady.ImageID != iid {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFullSubscriberDropsOldest(t *testing.T) {
	b := NewBus(2)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		b.PublishFSChange(FSChange{Path: strconv.Itoa(i)})
	}

	// The producer never blocks; the channel keeps only the newest backlog items.
	var got []string
drain:
	for {
		select {
		case e := <-ch:
			got = append(got, e.FSChange.Path)
		default:
			break drain
		}
	}
	if len(got) != 2 || got[0] != "3" || got[1] != "4" {
		t.Fatalf("buffered events = %v, want the newest two [3 4]", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	ch, cancel := b.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}
