package period

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdesk/labdesk/internal/platform/db"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

const periodColumns = `p.id::text, p.code, p.name, p.start_date, p.end_date, p.is_active, p.is_archived,
	(SELECT COUNT(*) FROM member_periods mp WHERE mp.period_id = p.id),
	p.total_projects, p.total_events, p.created_at, p.updated_at`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists periods and rosters in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the tables used by the period lifecycle.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("period: ensure schema: %w", err)
	}
	return nil
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("period: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// ListPeriods returns every period, newest first.
func (r *Repository) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM periods p ORDER BY p.start_date DESC, p.code DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	periods := make([]Period, 0)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// LoadPeriod fetches a single period.
func (r *Repository) LoadPeriod(ctx context.Context, id string) (Period, error) {
	return loadPeriod(ctx, r.pool, id, false)
}

// Roster returns all enrollment rows for a period.
func (r *Repository) Roster(ctx context.Context, periodID string) ([]MemberPeriod, error) {
	return queryRoster(ctx, r.pool, `SELECT mp.member_id::text, m.full_name, m.nim, p.code, mp.status, mp.position
FROM member_periods mp
JOIN members m ON m.id = mp.member_id
JOIN periods p ON p.id = mp.period_id
WHERE mp.period_id = $1
ORDER BY m.full_name, m.nim`, periodID)
}

// Integrity counts periods per lifecycle flag combination.
func (r *Repository) Integrity(ctx context.Context) (Integrity, error) {
	var out Integrity
	err := r.pool.QueryRow(ctx, `SELECT
	COUNT(*) FILTER (WHERE is_active),
	COUNT(*) FILTER (WHERE is_active AND is_archived),
	COUNT(*) FILTER (WHERE NOT is_active AND NOT is_archived)
FROM periods`).Scan(&out.Active, &out.ActiveArchived, &out.Pending)
	return out, err
}

type txRepo struct {
	q querier
}

func (t *txRepo) LoadPeriodForUpdate(ctx context.Context, id string) (Period, error) {
	return loadPeriod(ctx, t.q, id, true)
}

func (t *txRepo) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	_, err := t.q.Exec(ctx, `INSERT INTO periods (id, code, name, start_date, end_date) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Code, p.Name, p.StartDate.Time, p.EndDate.Time)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return Period{}, ErrDuplicateCode
		}
		return Period{}, err
	}
	return loadPeriod(ctx, t.q, p.ID, false)
}

func (t *txRepo) DeactivateAll(ctx context.Context) error {
	_, err := t.q.Exec(ctx, `UPDATE periods SET is_active = FALSE, updated_at = NOW() WHERE is_active`)
	return err
}

func (t *txRepo) Activate(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `UPDATE periods SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_archived`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrArchived
	}
	return nil
}

func (t *txRepo) Archive(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `UPDATE periods SET is_active = FALSE, is_archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (t *txRepo) DeletePeriod(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM periods WHERE id = $1 AND is_archived`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotArchived
	}
	return nil
}

func (t *txRepo) CountMembers(ctx context.Context, periodID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM member_periods WHERE period_id = $1`, periodID).Scan(&n)
	return n, err
}

func (t *txRepo) ActiveRosterForUpdate(ctx context.Context, periodID string) ([]MemberPeriod, error) {
	return queryRoster(ctx, t.q, `SELECT mp.member_id::text, m.full_name, m.nim, p.code, mp.status, mp.position
FROM member_periods mp
JOIN members m ON m.id = mp.member_id
JOIN periods p ON p.id = mp.period_id
WHERE mp.period_id = $1 AND mp.status = 'ACTIVE'
ORDER BY m.full_name, m.nim
FOR UPDATE OF mp`, periodID)
}

func (t *txRepo) InsertMemberPeriod(ctx context.Context, periodID string, m MemberPeriod) error {
	_, err := t.q.Exec(ctx, `INSERT INTO member_periods (period_id, member_id, status, position) VALUES ($1, $2, $3, $4)`,
		periodID, m.MemberID, string(m.Status), m.Position)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrAlreadyEnrolled
		case pgForeignKeyViolation, pgInvalidText:
			return fmt.Errorf("member %s: %w", m.MemberID, ErrNotFound)
		}
		return err
	}
	return nil
}

func (t *txRepo) MarkAlumni(ctx context.Context, periodID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	_, err := t.q.Exec(ctx, `UPDATE member_periods SET status = 'ALUMNI', updated_at = NOW()
WHERE period_id = $1 AND member_id::text = ANY($2)`, periodID, memberIDs)
	return err
}

func loadPeriod(ctx context.Context, q querier, id string, forUpdate bool) (Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods p WHERE p.id::text = $1`
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}
	p, err := scanPeriod(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.StartDate.Time, &p.EndDate.Time, &p.IsActive, &p.IsArchived,
		&p.TotalMembers, &p.TotalProjects, &p.TotalEvents, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func queryRoster(ctx context.Context, q querier, sql string, periodID string) ([]MemberPeriod, error) {
	rows, err := q.Query(ctx, sql, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roster := make([]MemberPeriod, 0)
	for rows.Next() {
		var m MemberPeriod
		var status string
		if err := rows.Scan(&m.MemberID, &m.MemberName, &m.MemberNIM, &m.PeriodCode, &status, &m.Position); err != nil {
			return nil, err
		}
		m.Status = MemberStatus(status)
		roster = append(roster, m)
	}
	return roster, rows.Err()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
