package chat

import (
	"sync"

	"github.com/ecolab/eco/backend/internal/model/chat"
)

type EventKind string

const (
	EventTurn  EventKind = "turn"
	EventState EventKind = "state"
)

// Event is one notification on the conversation feed.
type Event struct {
	Kind  EventKind  `json:"kind"`
	Turn  *chat.Turn `json:"turn,omitempty"`
	State State      `json:"state"`
}

const subscriberBuffer = 32

// Feed fans events out to subscribers. A subscriber whose buffer is full is
// disconnected: its channel closes and it must resync from a fresh snapshot.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*subscriber)}
}

func (f *Feed) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	return sub.ch, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.close()
	}
}

func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(f.subs, id)
			sub.close()
		}
	}
}
