package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RazeViana/Caitlyn/internal/birthday"
)

const placeholderYear = 2000

func dobOf(b birthday.Birthday) (time.Time, bool) {
	if b.Year == 0 {
		return time.Date(placeholderYear, b.Month, b.Day, 0, 0, 0, 0, time.UTC), false
	}
	return time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC), true
}

func fill(b *birthday.Birthday, dob time.Time, known bool) {
	b.Month, b.Day = dob.Month(), dob.Day()
	if known {
		b.Year = dob.Year()
	}
}

func (s *Store) GetBirthday(ctx context.Context, subjectID string) (*birthday.Birthday, error) {
	var (
		b     = birthday.Birthday{SubjectID: subjectID}
		dob   time.Time
		known bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, dob, year_known FROM birthdays WHERE subject_id = $1`, subjectID).
		Scan(&b.Name, &dob, &known)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, birthday.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get birthday: %w", err)
	}
	fill(&b, dob, known)
	return &b, nil
}

func (s *Store) InsertBirthday(ctx context.Context, b birthday.Birthday) error {
	dob, known := dobOf(b)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO birthdays (subject_id, name, dob, year_known) VALUES ($1, $2, $3, $4)`,
		b.SubjectID, b.Name, dob, known)
	if err != nil {
		if isUniqueViolation(err) {
			return birthday.ErrDuplicate
		}
		return fmt.Errorf("insert birthday: %w", err)
	}
	return nil
}

func (s *Store) UpdateBirthday(ctx context.Context, b birthday.Birthday) error {
	dob, known := dobOf(b)
	res, err := s.db.ExecContext(ctx,
		`UPDATE birthdays SET name = $2, dob = $3, year_known = $4, updated_at = now() WHERE subject_id = $1`,
		b.SubjectID, b.Name, dob, known)
	if err != nil {
		return fmt.Errorf("update birthday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return birthday.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBirthday(ctx context.Context, subjectID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM birthdays WHERE subject_id = $1`, subjectID)
	if err != nil {
		return false, fmt.Errorf("delete birthday: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete birthday: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListBirthdays(ctx context.Context) ([]birthday.Birthday, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, name, dob, year_known FROM birthdays
		ORDER BY EXTRACT(MONTH FROM dob), EXTRACT(DAY FROM dob), subject_id`)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	defer rows.Close()

	var out []birthday.Birthday
	for rows.Next() {
		var (
			b     birthday.Birthday
			dob   time.Time
			known bool
		)
		if err := rows.Scan(&b.SubjectID, &b.Name, &dob, &known); err != nil {
			return nil, fmt.Errorf("scan birthday: %w", err)
		}
		fill(&b, dob, known)
		out = append(out, b)
	}
	return out, rows.Err()
}
