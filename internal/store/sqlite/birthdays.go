package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RazeViana/Caitlyn/internal/birthday"
)

// Rows with an unknown birth year store 2000, a leap year, so Feb 29 fits.
const placeholderYear = 2000

func encodeDOB(b birthday.Birthday) (string, bool) {
	year, known := b.Year, true
	if year == 0 {
		year, known = placeholderYear, false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(b.Month), b.Day), known
}

// decodeDOB parses without normalizing so a corrupt date such as Feb 30
// still surfaces to validation.
func decodeDOB(dob string, known bool) (int, time.Month, int, error) {
	var y, m, d int
	if _, err := fmt.Sscanf(dob, "%d-%d-%d", &y, &m, &d); err != nil {
		return 0, 0, 0, fmt.Errorf("parse dob %q: %w", dob, err)
	}
	if !known {
		y = 0
	}
	return y, time.Month(m), d, nil
}

func (s *Store) GetBirthday(ctx context.Context, subjectID string) (*birthday.Birthday, error) {
	var (
		b     = birthday.Birthday{SubjectID: subjectID}
		dob   string
		known bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, dob, year_known FROM birthdays WHERE subject_id = ?`, subjectID,
	).Scan(&b.Name, &dob, &known)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, birthday.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get birthday: %w", err)
	}
	if b.Year, b.Month, b.Day, err = decodeDOB(dob, known); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) InsertBirthday(ctx context.Context, b birthday.Birthday) error {
	dob, known := encodeDOB(b)
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO birthdays (subject_id, name, dob, year_known, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.SubjectID, b.Name, dob, known, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return birthday.ErrDuplicate
		}
		return fmt.Errorf("insert birthday: %w", err)
	}
	return nil
}

func (s *Store) UpdateBirthday(ctx context.Context, b birthday.Birthday) error {
	dob, known := encodeDOB(b)
	res, err := s.db.ExecContext(ctx,
		`UPDATE birthdays SET name = ?, dob = ?, year_known = ?, updated_at = ? WHERE subject_id = ?`,
		b.Name, dob, known, time.Now().UnixMilli(), b.SubjectID)
	if err != nil {
		return fmt.Errorf("update birthday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return birthday.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBirthday(ctx context.Context, subjectID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM birthdays WHERE subject_id = ?`, subjectID)
	if err != nil {
		return false, fmt.Errorf("delete birthday: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete birthday: %w", err)
	}
	return n > 0, nil
}

// ListBirthdays orders by month and day. Rows whose dob cannot be parsed
// are returned with a zero date so rehydration can count them as failures.
func (s *Store) ListBirthdays(ctx context.Context) ([]birthday.Birthday, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id, name, dob, year_known FROM birthdays ORDER BY substr(dob, 6), subject_id`)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	defer rows.Close()

	var out []birthday.Birthday
	for rows.Next() {
		var (
			b     birthday.Birthday
			dob   string
			known bool
		)
		if err := rows.Scan(&b.SubjectID, &b.Name, &dob, &known); err != nil {
			return nil, fmt.Errorf("scan birthday: %w", err)
		}
		b.Year, b.Month, b.Day, _ = decodeDOB(dob, known)
		out = append(out, b)
	}
	return out, rows.Err()
}
