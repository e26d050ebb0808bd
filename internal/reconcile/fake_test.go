package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobuk/ex2gcal/internal/event"
)

// memCalendar is a destination calendar held in memory. It stores links the
// way the Google adapter does: next to the event they describe.
type memCalendar struct {
	mu     sync.Mutex
	seq    int
	events map[string]memEvent
	writes int
	fail   map[string]error
}

type memEvent struct {
	id    string
	event event.Event
	link  *event.Link
}

func newMemCalendar() *memCalendar {
	return &memCalendar{events: make(map[string]memEvent), fail: make(map[string]error)}
}

func (c *memCalendar) addForeign(title string, start, end time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := fmt.Sprintf("foreign-%d", c.seq)
	c.events[id] = memEvent{id: id, event: event.Event{Title: title, Start: start, End: end}}
	return id
}

func (c *memCalendar) Create(_ context.Context, e event.Event, link event.Link) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[e.SourceID]; err != nil {
		return "", err
	}
	c.seq++
	c.writes++
	id := fmt.Sprintf("g%d", c.seq)
	link.MirroredID = id
	c.events[id] = memEvent{id: id, event: e, link: &link}
	return id, nil
}

func (c *memCalendar) Update(_ context.Context, link event.Link, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[link.SourceID]; err != nil {
		return err
	}
	cur, ok := c.events[link.MirroredID]
	if !ok {
		return errors.New("not found")
	}
	if cur.link == nil {
		panic("update of a foreign event " + link.MirroredID)
	}
	c.writes++
	c.events[link.MirroredID] = memEvent{id: link.MirroredID, event: e, link: &link}
	return nil
}

func (c *memCalendar) Delete(_ context.Context, link event.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[link.SourceID]; err != nil {
		return err
	}
	cur, ok := c.events[link.MirroredID]
	if !ok {
		return errors.New("not found")
	}
	if cur.link == nil {
		panic("delete of a foreign event " + link.MirroredID)
	}
	c.writes++
	delete(c.events, link.MirroredID)
	return nil
}

// snapshot returns the events in id order, as a destination listing would.
func (c *memCalendar) snapshot() []Mirrored {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Mirrored, 0, len(c.events))
	for _, e := range c.events {
		m := Mirrored{DestinationID: e.id, Title: e.event.Title, Start: e.event.Start, End: e.event.End}
		if e.link != nil {
			l := *e.link
			m.Link = &l
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DestinationID < out[j].DestinationID })
	return out
}

func (c *memCalendar) owned() map[string]memEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]memEvent)
	for _, e := range c.events {
		if e.link != nil {
			out[e.link.SourceID] = e
		}
	}
	return out
}

type memJournal struct {
	mu    sync.Mutex
	links map[string]event.Link
	err   error
}

func newMemJournal() *memJournal {
	return &memJournal{links: make(map[string]event.Link)}
}

func (j *memJournal) PutLink(_ context.Context, link event.Link) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.links[link.SourceID] = link
	return nil
}

func (j *memJournal) RemoveLink(_ context.Context, link event.Link) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	if cur, ok := j.links[link.SourceID]; ok && cur.MirroredID == link.MirroredID {
		delete(j.links, link.SourceID)
	}
	return nil
}
