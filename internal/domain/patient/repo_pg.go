package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// pgRepository stores records in the patient_record table. Every statement
// commits on its own, so Persist has nothing left to write. Lists are kept
// as text[] and do not share the CSV comma limitation.
type pgRepository struct {
	db pgDB
}

func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

// pgDB is the subset of *pgxpool.Pool the repository uses.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
}

func (r *pgRepository) conn() pgDB {
	return r.db
}

const recordCols = `name, email, password, role, uid, conditions, prescriptions`

// Load checks that the table exists and is readable.
func (r *pgRepository) Load(ctx context.Context) error {
	var n int
	if err := r.conn().QueryRow(ctx, `SELECT count(*) FROM patient_record`).Scan(&n); err != nil {
		return fmt.Errorf("%w: load patient_record: %w", ErrStorage, err)
	}
	return nil
}

func (r *pgRepository) FindByEmail(ctx context.Context, email string) (*Record, error) {
	rec, err := scanRecord(r.conn().QueryRow(ctx, `SELECT `+recordCols+` FROM patient_record WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %w", ErrStorage, email, err)
	}
	return rec, nil
}

func (r *pgRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.conn().Query(ctx, `SELECT `+recordCols+` FROM patient_record ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrStorage, err)
	}
	return out, nil
}

func (r *pgRepository) Add(ctx context.Context, rec *Record) error {
	_, err := r.conn().Exec(ctx, `
		INSERT INTO patient_record (`+recordCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Name, rec.Email, rec.Credential, string(rec.Role), rec.UID, rec.Conditions, rec.Prescriptions)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("add %s: %w", rec.Email, ErrDuplicateEmail)
	}
	if err != nil {
		return fmt.Errorf("%w: add %s: %w", ErrStorage, rec.Email, err)
	}
	return nil
}

func (r *pgRepository) Update(ctx context.Context, rec *Record) error {
	tag, err := r.conn().Exec(ctx, `
		UPDATE patient_record SET
			name = $2, password = $3, role = $4, uid = $5, conditions = $6, prescriptions = $7
		WHERE email = $1`,
		rec.Email, rec.Name, rec.Credential, string(rec.Role), rec.UID, rec.Conditions, rec.Prescriptions)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrStorage, rec.Email, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", rec.Email, ErrNotFound)
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, email string) error {
	tag, err := r.conn().Exec(ctx, `DELETE FROM patient_record WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStorage, email, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", email, ErrNotFound)
	}
	return nil
}

func (r *pgRepository) Persist(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var role string
	if err := row.Scan(&rec.Name, &rec.Email, &rec.Credential, &role, &rec.UID, &rec.Conditions, &rec.Prescriptions); err != nil {
		return nil, err
	}
	rec.Role = Role(role)
	if !rec.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q for %s", role, rec.Email)
	}
	return &rec, nil
}
