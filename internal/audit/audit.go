// Package audit records every tool call in the local audit database.
package audit

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ToughForge/EspoMCP/internal/db"
)

// Call is one recorded tools/call.
type Call struct {
	ID        string        `json:"id"`
	Caller    string        `json:"caller"`
	Tool      string        `json:"tool"`
	Action    string        `json:"action,omitempty"`
	Entity    string        `json:"entity,omitempty"`
	IsError   bool          `json:"is_error"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Filter represents query filters for the audit log
type Filter struct {
	Caller     string    `json:"caller,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Entity     string    `json:"entity,omitempty"`
	ErrorsOnly bool      `json:"errors_only,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// DefaultLimit applies when Filter.Limit is zero.
const DefaultLimit = 100

// ToolStat aggregates calls of one tool.
type ToolStat struct {
	Tool      string  `json:"tool"`
	Calls     int     `json:"calls"`
	Errors    int     `json:"errors"`
	AvgMillis float64 `json:"avg_ms"`
}

// Stats summarizes the whole log.
type Stats struct {
	Total  int        `json:"total"`
	Errors int        `json:"errors"`
	ByTool []ToolStat `json:"by_tool"`
}

// Log handles audit operations
type Log struct {
	db  db.Database
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates an audit log over database.
func New(database db.Database) *Log {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Log{
		db:      database,
		now:     time.Now,
		entropy: ulid.Monotonic(src, 0),
	}
}

func (l *Log) newID(t time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), l.entropy).String()
}

// Record stores call, assigning its id and time when unset.
func (l *Log) Record(ctx context.Context, call Call) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = l.now()
	}
	if call.ID == "" {
		call.ID = l.newID(call.CreatedAt)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, caller, tool, action, entity, is_error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, call.ID, call.Caller, call.Tool, call.Action, call.Entity,
		boolInt(call.IsError), call.Duration.Milliseconds(), call.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("감사 기록 실패: %w", err)
	}
	return nil
}

// List returns calls newest first, with the total matching count.
func (l *Log) List(ctx context.Context, filter Filter) ([]Call, int, error) {
	where, args := filter.conditions()

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("카운트 조회 실패: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `
		SELECT id, caller, tool, COALESCE(action, ''), COALESCE(entity, ''), is_error, duration_ms, created_at
		FROM tool_calls` + where + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit)
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("감사 조회 실패: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var (
			c         Call
			isError   int
			millis    int64
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.Caller, &c.Tool, &c.Action, &c.Entity, &isError, &millis, &createdAt); err != nil {
			return nil, 0, err
		}
		c.IsError = isError != 0
		c.Duration = time.Duration(millis) * time.Millisecond
		c.CreatedAt = time.UnixMilli(createdAt)
		calls = append(calls, c)
	}
	return calls, total, rows.Err()
}

// Stats returns totals and per-tool counts, busiest tool first.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), CAST(COALESCE(SUM(is_error), 0) AS BIGINT) FROM tool_calls`).Scan(&st.Total, &st.Errors)
	if err != nil {
		return Stats{}, fmt.Errorf("통계 조회 실패: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT tool, COUNT(*), CAST(COALESCE(SUM(is_error), 0) AS BIGINT), CAST(COALESCE(AVG(duration_ms), 0) AS DOUBLE)
		FROM tool_calls
		GROUP BY tool
		ORDER BY COUNT(*) DESC, tool ASC
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("통계 조회 실패: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts ToolStat
		if err := rows.Scan(&ts.Tool, &ts.Calls, &ts.Errors, &ts.AvgMillis); err != nil {
			return Stats{}, err
		}
		st.ByTool = append(st.ByTool, ts)
	}
	return st, rows.Err()
}

// Prune deletes calls older than before and returns how many.
func (l *Log) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("감사 정리 실패: %w", err)
	}
	return res.RowsAffected()
}

func (f Filter) conditions() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Caller != "" {
		conds = append(conds, "caller = ?")
		args = append(args, f.Caller)
	}
	if f.Tool != "" {
		conds = append(conds, "tool = ?")
		args = append(args, f.Tool)
	}
	if f.Entity != "" {
		conds = append(conds, "entity = ?")
		args = append(args, f.Entity)
	}
	if f.ErrorsOnly {
		conds = append(conds, "is_error = 1")
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
