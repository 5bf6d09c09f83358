package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one journaled frame.
type Entry struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Direction asb.Direction `json:"direction"`
	Raw       string        `json:"raw"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`

	// Header fields are nil for lines that did not decode.
	MsgType *int    `json:"msg_type,omitempty"`
	Target  *uint16 `json:"target,omitempty"`
	Source  *uint16 `json:"source,omitempty"`
	Port    *int    `json:"port,omitempty"`
	Length  *int    `json:"length,omitempty"`

	// Data is the payload as space-separated hex, e.g. "51 01".
	Data        string `json:"data,omitempty"`
	Description string `json:"description,omitempty"`
}

// Filter controls which entries List returns.
type Filter struct {
	Direction asb.Direction // optional: rx or tx
	Source    *uint16       // optional: sending node
	Since     time.Time     // optional: entries at or after this time
	Limit     int           // default 50, max 500
	Offset    int           // pagination offset
}

// ListResult contains one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the frame journal operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores frames in SQLite.
type SQLiteRepository struct {
	db   *sql.DB
	mode asb.NumericMode
}

var (
	_ Repository       = (*SQLiteRepository)(nil)
	_ asb.FrameJournal = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository creates a repository. mode selects how payload
// descriptions are rendered.
func NewSQLiteRepository(db *sql.DB, mode asb.NumericMode) *SQLiteRepository {
	return &SQLiteRepository{db: db, mode: mode}
}

// Record journals a frame seen by the bridge.
func (r *SQLiteRepository) Record(ctx context.Context, rec asb.FrameRecord) error {
	e := r.entryFrom(rec)
	return r.Create(ctx, &e)
}

func (r *SQLiteRepository) entryFrom(rec asb.FrameRecord) Entry {
	e := Entry{
		CreatedAt: rec.At,
		Direction: rec.Direction,
		Raw:       strings.TrimRight(string(rec.Raw), "\r\n"),
		OK:        rec.Err == nil,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}

	if p := rec.Packet; p != nil {
		msgType, target, source, port, length := int(p.Type), p.Target, p.Source, p.Port, p.Length
		e.MsgType = &msgType
		e.Target = &target
		e.Source = &source
		e.Port = &port
		e.Length = &length
		e.Data = strings.TrimSpace(fmt.Sprintf("% X", p.Data))
		e.Description = asb.Interpret(p.Data, r.mode)
	}

	return e
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	okInt := 0
	if e.OK {
		okInt = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO frames (id, created_at, direction, raw, ok, error, msg_type, target, source, port, length, data, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.Format(timeLayout), string(e.Direction), e.Raw, okInt,
		nullableString(e.Error),
		nullableInt(e.MsgType), nullableUint16(e.Target), nullableUint16(e.Source),
		nullableInt(e.Port), nullableInt(e.Length),
		nullableString(e.Data), nullableString(e.Description),
	)
	if err != nil {
		return fmt.Errorf("inserting frame: %w", err)
	}

	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Direction != "" {
		conditions = append(conditions, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if filter.Source != nil {
		conditions = append(conditions, "source = ?")
		args = append(args, int64(*filter.Source))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM frames %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting frames: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, created_at, direction, raw, ok, error, msg_type, target, source, port, length, data, description
		 FROM frames %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frames: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                     Entry
		createdAt, direction                  string
		okInt                                 int
		errText, data, description            sql.NullString
		msgType, target, source, port, length sql.NullInt64
	)

	if err := rows.Scan(&e.ID, &createdAt, &direction, &e.Raw, &okInt, &errText,
		&msgType, &target, &source, &port, &length, &data, &description); err != nil {
		return Entry{}, fmt.Errorf("scanning frame: %w", err)
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing frame timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	e.Direction = asb.Direction(direction)
	e.OK = okInt != 0
	e.Error = errText.String
	e.Data = data.String
	e.Description = description.String

	e.MsgType = intPtr(msgType)
	e.Port = intPtr(port)
	e.Length = intPtr(length)
	e.Target = uint16Ptr(target)
	e.Source = uint16Ptr(source)

	return e, nil
}

// Prune deletes entries older than before and returns how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM frames WHERE created_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	return n, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableUint16(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func uint16Ptr(v sql.NullInt64) *uint16 {
	if !v.Valid {
		return nil
	}
	u := uint16(v.Int64) //nolint:gosec // column only ever holds 16-bit addresses
	return &u
}
