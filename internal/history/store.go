// Package history keeps an audit log of brokered commands in SQLite. It never
// stores argument payloads, only their size and BLAKE3 digest.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Record is one command as seen by the audit log.
type Record struct {
	Seq         int64      `json:"seq"`
	ID          string     `json:"id"`
	Tool        string     `json:"tool"`
	ArgsDigest  string     `json:"args_digest"`
	ArgsBytes   int        `json:"args_bytes"`
	State       string     `json:"state"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ElapsedMs   *int64     `json:"elapsed_ms,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ArgsDigest returns the hex BLAKE3 hash of a command's arguments.
func ArgsDigest(args []byte) string {
	sum := blake3.Sum256(args)
	return hex.EncodeToString(sum[:])
}

// Store reads and writes the command_log table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records a newly submitted command.
func (s *Store) Insert(ctx context.Context, id, tool string, args []byte, state string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO command_log(id, tool, args_digest, args_bytes, state, submitted_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, tool, ArgsDigest(args), len(args), state, formatTime(at))
	if err != nil {
		return fmt.Errorf("insert command %s: %w", id, err)
	}
	return nil
}

// MarkClaimed records the claim time of the latest row for id.
func (s *Store) MarkClaimed(ctx context.Context, id, state string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE command_log
SET state = ?, claimed_at = ?
WHERE seq = (SELECT MAX(seq) FROM command_log WHERE id = ?);
`, state, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark command %s claimed: %w", id, err)
	}
	return nil
}

// MarkDone records the terminal state of the latest row for id.
func (s *Store) MarkDone(ctx context.Context, id, state string, at time.Time, elapsed time.Duration, errMsg string) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE command_log
SET state = ?, completed_at = ?, elapsed_ms = ?, error = ?
WHERE seq = (SELECT MAX(seq) FROM command_log WHERE id = ?);
`, state, formatTime(at), elapsed.Milliseconds(), errVal, id)
	if err != nil {
		return fmt.Errorf("mark command %s %s: %w", id, state, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, id, tool, args_digest, args_bytes, state, submitted_at, claimed_at, completed_at, elapsed_ms, error
FROM command_log
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r            Record
			submittedAtS string
			claimedAtS   sql.NullString
			completedAtS sql.NullString
			elapsedMs    sql.NullInt64
			errMsg       sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Tool, &r.ArgsDigest, &r.ArgsBytes, &r.State,
			&submittedAtS, &claimedAtS, &completedAtS, &elapsedMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, submittedAtS); err == nil {
			r.SubmittedAt = t
		}
		r.ClaimedAt = parseNullTime(claimedAtS)
		r.CompletedAt = parseNullTime(completedAtS)
		if elapsedMs.Valid {
			v := elapsedMs.Int64
			r.ElapsedMs = &v
		}
		if errMsg.Valid {
			r.Error = errMsg.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Prune deletes records submitted before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM command_log WHERE submitted_at < ?;`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}

// Timestamps are stored as fixed-width UTC strings so they sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
