package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/reconcile"
)

// LinkJournal records the links of one destination calendar.
type LinkJournal struct {
	store      *Store
	calendarID string
	now        func() time.Time
}

var _ reconcile.LinkJournal = (*LinkJournal)(nil)

// JournalFor returns the journal of calendarID.
func (s *Store) JournalFor(calendarID string) *LinkJournal {
	return &LinkJournal{store: s, calendarID: calendarID, now: time.Now}
}

// JournaledLink is a stored link with its bookkeeping columns.
type JournaledLink struct {
	event.Link
	CalendarID string
	UpdatedAt  time.Time
}

// PutLink inserts or replaces the link of link.SourceID.
func (j *LinkJournal) PutLink(ctx context.Context, link event.Link) error {
	_, err := j.store.DB.ExecContext(ctx, `
		INSERT INTO mirror_links (calendar_id, source_id, mirrored_id, last_modified, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (calendar_id, source_id) DO UPDATE SET
			mirrored_id = excluded.mirrored_id,
			last_modified = excluded.last_modified,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at
	`, j.calendarID, link.SourceID, link.MirroredID, formatTime(link.LastModified), link.Fingerprint, formatTime(j.now()))
	if err != nil {
		return fmt.Errorf("failed to store link %q: %w", link.SourceID, err)
	}
	return nil
}

// RemoveLink deletes the row only while it still points at link.MirroredID.
func (j *LinkJournal) RemoveLink(ctx context.Context, link event.Link) error {
	_, err := j.store.DB.ExecContext(ctx,
		`DELETE FROM mirror_links WHERE calendar_id = ? AND source_id = ? AND mirrored_id = ?`,
		j.calendarID, link.SourceID, link.MirroredID)
	if err != nil {
		return fmt.Errorf("failed to remove link %q: %w", link.SourceID, err)
	}
	return nil
}

// Links lists the journal ordered by sourceId.
func (j *LinkJournal) Links(ctx context.Context) ([]JournaledLink, error) {
	rows, err := j.store.DB.QueryContext(ctx, `
		SELECT source_id, mirrored_id, last_modified, fingerprint, updated_at
		FROM mirror_links
		WHERE calendar_id = ?
		ORDER BY source_id
	`, j.calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []JournaledLink
	for rows.Next() {
		var l JournaledLink
		var lastModified, updatedAt string
		if err := rows.Scan(&l.SourceID, &l.MirroredID, &lastModified, &l.Fingerprint, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		l.CalendarID = j.calendarID
		l.LastModified = parseTime(lastModified)
		l.UpdatedAt = parseTime(updatedAt)
		links = append(links, l)
	}
	return links, rows.Err()
}

// Clear drops every link of the calendar and returns how many were removed.
func (j *LinkJournal) Clear(ctx context.Context) (int64, error) {
	res, err := j.store.DB.ExecContext(ctx, `DELETE FROM mirror_links WHERE calendar_id = ?`, j.calendarID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
