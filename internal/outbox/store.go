package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reelsmith/internal/services"
)

const entryColumns = "id, project_id, prompt_id, operation, payload, attempts, last_error, created_at, updated_at, delivered_at"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultBatch bounds Pending and Drain when no limit is given.
const DefaultBatch = 100

// DeliverFunc hands one entry to the remote side.
type DeliverFunc func(ctx context.Context, entry Entry) error

// Enqueue records a mutation for project/prompt. An existing entry for the
// same prompt is replaced and its delivery state reset.
func (s *Store) Enqueue(ctx context.Context, entry Entry) (*Entry, error) {
	projectID := strings.TrimSpace(entry.ProjectID)
	promptID := strings.TrimSpace(entry.PromptID)
	if projectID == "" || promptID == "" {
		return nil, services.Wrap(services.ErrValidation, "outbox", "enqueue", "project and prompt ids are required", nil)
	}
	op, ok := ParseOperation(string(entry.Operation))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "outbox", "enqueue",
			fmt.Sprintf("unknown operation %q", entry.Operation), nil)
	}
	timestamp := s.now().UTC().Format(timeLayout)

	_, err := s.execWithRetry(ctx,
		`INSERT INTO outbox_entries (
            project_id, prompt_id, operation, payload, attempts, last_error, created_at, updated_at, delivered_at
        ) VALUES (?, ?, ?, ?, 0, NULL, ?, ?, NULL)
        ON CONFLICT(project_id, prompt_id) DO UPDATE SET
            operation = excluded.operation,
            payload = excluded.payload,
            attempts = 0,
            last_error = NULL,
            updated_at = excluded.updated_at,
            delivered_at = NULL`,
		projectID, promptID, string(op), nullableString(entry.Payload), timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s/%s: %w", projectID, promptID, err)
	}
	return s.Get(ctx, projectID, promptID)
}

// Get returns the entry for project/prompt, or nil when none exists.
func (s *Store) Get(ctx context.Context, projectID, promptID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM outbox_entries WHERE project_id = ? AND prompt_id = ?`,
		strings.TrimSpace(projectID), strings.TrimSpace(promptID))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	return entry, nil
}

// Pending returns undelivered entries, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultBatch
	}
	return s.query(ctx,
		`SELECT `+entryColumns+` FROM outbox_entries
        WHERE delivered_at IS NULL
        ORDER BY updated_at, id
        LIMIT ?`, limit)
}

// List returns every entry, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultBatch
	}
	return s.query(ctx,
		`SELECT `+entryColumns+` FROM outbox_entries
        ORDER BY updated_at DESC, id DESC
        LIMIT ?`, limit)
}

// ErrSuperseded reports that an entry was replaced by a newer Enqueue after
// the caller read it. The newer mutation stays pending.
var ErrSuperseded = errors.New("outbox entry superseded")

// MarkDelivered records a successful hand-off of entry as read by Pending.
// It returns ErrSuperseded when the row has changed since that read.
func (s *Store) MarkDelivered(ctx context.Context, entry Entry) error {
	timestamp := s.now().UTC().Format(timeLayout)
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_entries SET delivered_at = ?, updated_at = ?, last_error = NULL
        WHERE id = ? AND `+snapshotGuard,
		append([]any{timestamp, timestamp, entry.ID}, snapshotArgs(entry)...)...)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return s.requireSnapshot(ctx, res, entry.ID)
}

// MarkFailed records a failed delivery attempt of entry as read by Pending.
// It returns ErrSuperseded when the row has changed since that read.
func (s *Store) MarkFailed(ctx context.Context, entry Entry, cause error) error {
	msg := "delivery failed"
	if cause != nil {
		msg = cause.Error()
	}
	timestamp := s.now().UTC().Format(timeLayout)
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox_entries SET attempts = attempts + 1, last_error = ?, updated_at = ?
        WHERE id = ? AND `+snapshotGuard,
		append([]any{msg, timestamp, entry.ID}, snapshotArgs(entry)...)...)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.requireSnapshot(ctx, res, entry.ID)
}

// snapshotGuard matches a row only while it still holds the mutation the
// caller read. Payload uses IS so NULL compares equal.
const snapshotGuard = `updated_at = ? AND attempts = ? AND operation = ? AND payload IS ? AND delivered_at IS NULL`

func snapshotArgs(entry Entry) []any {
	return []any{
		entry.UpdatedAt.UTC().Format(timeLayout),
		entry.Attempts,
		string(entry.Operation),
		nullableString(entry.Payload),
	}
}

// Stats counts entries by delivery state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var pending, retrying, delivered sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            SUM(CASE WHEN delivered_at IS NULL THEN 1 ELSE 0 END),
            SUM(CASE WHEN delivered_at IS NULL AND attempts > 0 THEN 1 ELSE 0 END),
            SUM(CASE WHEN delivered_at IS NOT NULL THEN 1 ELSE 0 END)
        FROM outbox_entries`).Scan(&stats.Total, &pending, &retrying, &delivered)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}
	stats.Pending = int(pending.Int64)
	stats.Retrying = int(retrying.Int64)
	stats.Delivered = int(delivered.Int64)
	return stats, nil
}

// Drain hands up to limit pending entries to deliver, one at a time.
// Delivery errors are recorded on the entry and do not stop the pass; the
// entry stays pending for a later Drain. An entry re-enqueued while its
// delivery was in flight is counted as superseded and left pending.
func (s *Store) Drain(ctx context.Context, deliver DeliverFunc, limit int) (DrainResult, error) {
	var result DrainResult
	if deliver == nil {
		return result, services.Wrap(services.ErrConfiguration, "outbox", "drain", "no delivery function configured", nil)
	}
	entries, err := s.Pending(ctx, limit)
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if deliverErr := deliver(ctx, *entry); deliverErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			err := s.MarkFailed(ctx, *entry, deliverErr)
			if errors.Is(err, ErrSuperseded) {
				result.Superseded++
				continue
			}
			if err != nil {
				return result, err
			}
			result.Failed++
			continue
		}
		err := s.MarkDelivered(ctx, *entry)
		if errors.Is(err, ErrSuperseded) {
			result.Superseded++
			continue
		}
		if err != nil {
			return result, err
		}
		result.Delivered++
	}
	return result, nil
}

// Purge removes delivered entries last updated before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM outbox_entries WHERE delivered_at IS NOT NULL AND delivered_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry        Entry
		operation    string
		payload      sql.NullString
		lastError    sql.NullString
		createdRaw   string
		updatedRaw   string
		deliveredRaw sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.ProjectID,
		&entry.PromptID,
		&operation,
		&payload,
		&entry.Attempts,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&deliveredRaw,
	); err != nil {
		return nil, err
	}
	entry.Operation = Operation(operation)
	entry.Payload = payload.String
	entry.LastError = lastError.String
	entry.CreatedAt = parseTime(createdRaw)
	entry.UpdatedAt = parseTime(updatedRaw)
	if deliveredRaw.Valid && deliveredRaw.String != "" {
		t := parseTime(deliveredRaw.String)
		entry.DeliveredAt = &t
	}
	return &entry, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// requireSnapshot maps a guarded update that touched no row to
// ErrNotFound when id is gone and ErrSuperseded otherwise.
func (s *Store) requireSnapshot(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM outbox_entries WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("outbox entry %d: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("outbox entry %d: %w", id, err)
	}
	return fmt.Errorf("outbox entry %d: %w", id, ErrSuperseded)
}
