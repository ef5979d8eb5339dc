package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

const lecturerColumns = `id, title, name, email, created_at`

// CreateLecturer inserts a lecturer, assigning an id when empty.
func (m *Manager) CreateLecturer(ctx context.Context, lecturer *types.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	lecturer.Email = types.NormalizeClientType(lecturer.Email)
	lecturer.CreatedAt = now()

	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO lecturers (id, title, name, email, created_at)
			VALUES (:id, :title, :name, :email, :created_at)`, lecturer)
		return translate(err, "failed to insert lecturer")
	})
}

// GetLecturerByEmail looks a lecturer up by login email.
func (m *Manager) GetLecturerByEmail(ctx context.Context, email string) (*types.Lecturer, error) {
	var l types.Lecturer
	err := m.db.GetContext(ctx, &l,
		m.q(`SELECT `+lecturerColumns+` FROM lecturers WHERE email = ?`),
		types.NormalizeClientType(email))
	if err != nil {
		return nil, translate(err, "lecturer "+email)
	}
	return &l, nil
}

// GetLecturerByID looks a lecturer up by id.
func (m *Manager) GetLecturerByID(ctx context.Context, id string) (*types.Lecturer, error) {
	var l types.Lecturer
	err := m.db.GetContext(ctx, &l, m.q(`SELECT `+lecturerColumns+` FROM lecturers WHERE id = ?`), id)
	if err != nil {
		return nil, translate(err, "lecturer "+id)
	}
	return &l, nil
}

const adviserColumns = `id, title, name, email, level, clear_phrase_hash, created_at`

// CreateLevelAdviser inserts a level adviser, assigning an id when empty.
func (m *Manager) CreateLevelAdviser(ctx context.Context, adviser *types.LevelAdviser) error {
	if adviser.ID == "" {
		adviser.ID = uuid.NewString()
	}
	adviser.Email = types.NormalizeClientType(adviser.Email)
	adviser.CreatedAt = now()

	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO level_advisers (id, title, name, email, level, clear_phrase_hash, created_at)
			VALUES (:id, :title, :name, :email, :level, :clear_phrase_hash, :created_at)`, adviser)
		return translate(err, "failed to insert level adviser")
	})
}

// GetLevelAdviserByEmail looks a level adviser up by login email.
func (m *Manager) GetLevelAdviserByEmail(ctx context.Context, email string) (*types.LevelAdviser, error) {
	var a types.LevelAdviser
	err := m.db.GetContext(ctx, &a,
		m.q(`SELECT `+adviserColumns+` FROM level_advisers WHERE email = ?`),
		types.NormalizeClientType(email))
	if err != nil {
		return nil, translate(err, "level adviser "+email)
	}
	return &a, nil
}

// GetLevelAdviserByLevel returns the earliest registered adviser of a level.
func (m *Manager) GetLevelAdviserByLevel(ctx context.Context, level int) (*types.LevelAdviser, error) {
	var a types.LevelAdviser
	err := m.db.GetContext(ctx, &a,
		m.q(`SELECT `+adviserColumns+` FROM level_advisers WHERE level = ? ORDER BY created_at LIMIT 1`),
		level)
	if err != nil {
		return nil, translate(err, "level adviser for level")
	}
	return &a, nil
}

// SetLevelAdviserPhrase stores a bcrypt hash of the adviser's clear phrase.
func (m *Manager) SetLevelAdviserPhrase(ctx context.Context, email, phraseHash string) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx,
			m.q(`UPDATE level_advisers SET clear_phrase_hash = ? WHERE email = ?`),
			phraseHash, types.NormalizeClientType(email))
		if err != nil {
			return errors.Wrap(err, "failed to update clear phrase")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrap(interfaces.ErrNotFound, "level adviser "+email)
		}
		return nil
	})
}
