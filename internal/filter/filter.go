// Package filter applies the skip-list and title prefix policy before
// reconciliation.
package filter

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/bobuk/ex2gcal/internal/event"
)

// Policy is the already-parsed filter configuration.
type Policy struct {
	TitlePrefix     string
	SkipTitles      map[string]struct{}
	MirrorCancelled bool
}

// NewPolicy builds a policy from a list of titles to skip.
func NewPolicy(prefix string, skip []string, mirrorCancelled bool) Policy {
	titles := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		titles[s] = struct{}{}
	}
	return Policy{TitlePrefix: prefix, SkipTitles: titles, MirrorCancelled: mirrorCancelled}
}

// ParseSkipList splits a comma-separated skip-list. Entries are trimmed and
// empty entries dropped.
func ParseSkipList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Result is the filtered batch.
type Result struct {
	Events []event.Event
	// Protected holds sourceIds excluded by the skip-list. Their existing
	// mirrors must be left alone.
	Protected map[string]struct{}
	Skipped   int
	Cancelled int
}

// Apply filters events and prefixes the titles of the ones that pass.
func (p Policy) Apply(events []event.Event, logger log.FieldLogger) Result {
	if logger == nil {
		logger = log.StandardLogger()
	}
	res := Result{
		Events:    make([]event.Event, 0, len(events)),
		Protected: make(map[string]struct{}),
	}
	for _, e := range events {
		if _, skip := p.SkipTitles[e.Title]; skip {
			logger.WithField("sourceId", e.SourceID).Infof("Event skipped: %s", e.Title)
			res.Protected[e.SourceID] = struct{}{}
			res.Skipped++
			continue
		}
		if e.Cancelled && !p.MirrorCancelled {
			logger.WithField("sourceId", e.SourceID).Debugf("Cancelled event dropped: %s", e.Title)
			res.Cancelled++
			continue
		}
		if p.TitlePrefix != "" {
			e = e.WithTitle(p.TitlePrefix + e.Title)
		}
		res.Events = append(res.Events, e)
	}
	return res
}
