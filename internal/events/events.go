// Package events implements the broadcast channel(s) with bounded backlog:
// image events may be observed in any order across subscribers, but
// per-subscriber order is FIFO within channel capacity.
package events

import (
	"sync"

	"github.com/ferrex-media/ferrex/internal/ids"
)

type ImageReady struct {
	ImageID ids.ImageID
	Size    string
	Token   string
}

type MediaChanged struct {
	MediaID ids.MediaID
	Kind    ids.MediaKind
}

// Event is the union of everything the bus carries, including filesystem
// deltas bridged in from an external watcher.
type Event struct {
	ImageReady   *ImageReady
	MediaChanged *MediaChanged
	FSChange     *FSChange
}

// FSChange is the adapter shape for filesystem-change deltas bridged in from
// an external watcher.
type FSChange struct {
	LibraryID ids.LibraryID
	Path      string
	Removed   bool
}

// Bus is a process-local broadcast hub. Subscribers never block producers:
// a subscriber whose channel is full silently drops the oldest queued event
// to make room, matching "slow subscribers drop old events rather than
// block producers".
type Bus struct {
	mu      sync.Mutex
	backlog int
	subs    map[int]chan Event
	nextID  int
}

func NewBus(backlog int) *Bus {
	if backlog <= 0 {
		backlog = 4096
	}
	return &Bus{backlog: backlog, subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.backlog)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Full: drop the oldest queued event, then retry the send once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}

func (b *Bus) PublishImageReady(iid ids.ImageID, size, token string) {
	b.Publish(Event{ImageReady: &ImageReady{ImageID: iid, Size: size, Token: token}})
}

func (b *Bus) PublishMediaChanged(mid ids.MediaID, kind ids.MediaKind) {
	b.Publish(Event{MediaChanged: &MediaChanged{MediaID: mid, Kind: kind}})
}

func (b *Bus) PublishFSChange(c FSChange) {
	b.Publish(Event{FSChange: &c})
}

// SubscriberCount reports the number of live subscribers, used by
// housekeeping's cache statistics reporting for operator visibility.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
