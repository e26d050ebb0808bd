package reconcile

import (
	"time"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

// Mirrored is one destination event found in the sync window. Link is nil for
// events this tool did not create.
type Mirrored struct {
	DestinationID string
	Title         string
	Start         time.Time
	End           time.Time
	Link          *event.Link
}

// Owned reports whether the destination event carries a mirror link.
func (m Mirrored) Owned() bool {
	return m.Link != nil && m.Link.SourceID != ""
}

// Operation is one planned destination write.
type Operation struct {
	Kind     syncerr.Op
	SourceID string
	// Event is the source data for create and update.
	Event event.Event
	// Link is the link to store (create, update) or remove (delete).
	Link   event.Link
	Reason string
}

// Plan is the minimal diff between a source snapshot and its mirrors.
type Plan struct {
	Ops       []Operation
	Unchanged int
	// Foreign counts destination events without a link.
	Foreign int
	// Protected counts mirrors left alone because of the skip-list.
	Protected int
	// DuplicateSource counts repeated sourceIds in the source snapshot.
	DuplicateSource int
}

// Count returns how many operations of kind the plan holds.
func (p Plan) Count(kind syncerr.Op) int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Empty reports whether applying the plan writes nothing.
func (p Plan) Empty() bool {
	return len(p.Ops) == 0
}

// BuildPlan computes creates, updates and deletes. Destination events without
// a link never appear in the plan. Mirrors of protected sourceIds are never
// touched.
func BuildPlan(src []event.Event, mirrored []Mirrored, protected map[string]struct{}) Plan {
	var plan Plan

	index := make(map[string]Mirrored, len(mirrored))
	var duplicates []Mirrored
	for _, m := range mirrored {
		if !m.Owned() {
			plan.Foreign++
			continue
		}
		if _, seen := index[m.Link.SourceID]; seen {
			duplicates = append(duplicates, m)
			continue
		}
		index[m.Link.SourceID] = m
	}

	seen := make(map[string]struct{}, len(src))
	for _, s := range src {
		if _, dup := seen[s.SourceID]; dup {
			plan.DuplicateSource++
			continue
		}
		seen[s.SourceID] = struct{}{}

		m, ok := index[s.SourceID]
		if !ok {
			plan.Ops = append(plan.Ops, Operation{
				Kind:     syncerr.OpCreate,
				SourceID: s.SourceID,
				Event:    s,
				Link:     event.LinkFor(s, ""),
				Reason:   "not mirrored yet",
			})
			continue
		}

		current := *m.Link
		current.MirroredID = m.DestinationID
		if reason, changed := needsUpdate(s, current); changed {
			s.MirroredID = m.DestinationID
			plan.Ops = append(plan.Ops, Operation{
				Kind:     syncerr.OpUpdate,
				SourceID: s.SourceID,
				Event:    s,
				Link:     event.LinkFor(s, m.DestinationID),
				Reason:   reason,
			})
			continue
		}
		plan.Unchanged++
	}

	for _, m := range mirrored {
		if !m.Owned() {
			continue
		}
		id := m.Link.SourceID
		if kept := index[id]; kept.DestinationID != m.DestinationID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := protected[id]; ok {
			plan.Protected++
			continue
		}
		plan.Ops = append(plan.Ops, deleteOp(m, "gone from source"))
	}

	for _, m := range duplicates {
		if _, ok := protected[m.Link.SourceID]; ok {
			plan.Protected++
			continue
		}
		plan.Ops = append(plan.Ops, deleteOp(m, "duplicate mirror"))
	}

	return plan
}

func deleteOp(m Mirrored, reason string) Operation {
	link := *m.Link
	link.MirroredID = m.DestinationID
	return Operation{
		Kind:     syncerr.OpDelete,
		SourceID: link.SourceID,
		Link:     link,
		Reason:   reason,
	}
}

// needsUpdate decides on the source timestamp first and falls back to the
// field fingerprint, which also catches prefix changes and sources with
// unreliable timestamps.
func needsUpdate(s event.Event, link event.Link) (string, bool) {
	if !s.LastModified.IsZero() && s.LastModified.After(link.LastModified) {
		return "modified at source", true
	}
	if s.Fingerprint() != link.Fingerprint {
		return "fields changed", true
	}
	return "", false
}
