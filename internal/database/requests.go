package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

const requestColumns = `id, email, course_code, event_feedback_name, state, created_at, expires_at`

// CreateOngoingRequest persists a ledger entry, assigning an id when empty.
func (m *Manager) CreateOngoingRequest(ctx context.Context, req *types.OngoingRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = dbTime(req.CreatedAt)
	req.ExpiresAt = dbTime(req.ExpiresAt)

	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO ongoing_requests (id, email, course_code, event_feedback_name, state, created_at, expires_at)
			VALUES (:id, :email, :course_code, :event_feedback_name, :state, :created_at, :expires_at)`, req)
		return translate(err, "failed to insert ongoing request")
	})
}

// FindOngoingRequest returns the newest unexpired entry for a key.
func (m *Manager) FindOngoingRequest(ctx context.Context, courseCode, eventFeedbackName string, at time.Time) (*types.OngoingRequest, error) {
	var r types.OngoingRequest
	err := m.db.GetContext(ctx, &r, m.q(`
		SELECT `+requestColumns+`
		FROM ongoing_requests
		WHERE course_code = ? AND event_feedback_name = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`), courseCode, eventFeedbackName, dbTime(at))
	if err != nil {
		return nil, translate(err, "ongoing request "+courseCode+"/"+eventFeedbackName)
	}
	return &r, nil
}

// UpdateOngoingRequestState moves an entry to a new state.
func (m *Manager) UpdateOngoingRequestState(ctx context.Context, id, state string) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, m.q(`UPDATE ongoing_requests SET state = ? WHERE id = ?`), state, id)
		if err != nil {
			return errors.Wrap(err, "failed to update ongoing request")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrap(interfaces.ErrNotFound, "ongoing request "+id)
		}
		return nil
	})
}

// DeleteOngoingRequests removes every entry for a key.
func (m *Manager) DeleteOngoingRequests(ctx context.Context, courseCode, eventFeedbackName string) (int, error) {
	var n int64
	err := m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx,
			m.q(`DELETE FROM ongoing_requests WHERE course_code = ? AND event_feedback_name = ?`),
			courseCode, eventFeedbackName)
		if err != nil {
			return errors.Wrap(err, "failed to delete ongoing requests")
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// DeleteExpiredOngoingRequests removes entries whose deadline passed.
func (m *Manager) DeleteExpiredOngoingRequests(ctx context.Context, at time.Time) (int, error) {
	var n int64
	err := m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, m.q(`DELETE FROM ongoing_requests WHERE expires_at <= ?`), dbTime(at))
		if err != nil {
			return errors.Wrap(err, "failed to delete expired ongoing requests")
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// ListOngoingRequests returns every entry, oldest first.
func (m *Manager) ListOngoingRequests(ctx context.Context) ([]*types.OngoingRequest, error) {
	var reqs []*types.OngoingRequest
	err := m.db.SelectContext(ctx, &reqs, `SELECT `+requestColumns+` FROM ongoing_requests ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ongoing requests")
	}
	return reqs, nil
}
