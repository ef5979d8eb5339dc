package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"attendancehub/pkg/types"
)

// DeviceConnectionExists reports whether a device location was ever seen.
func (m *Manager) DeviceConnectionExists(ctx context.Context, deviceLocation string) (bool, error) {
	var n int
	err := m.db.GetContext(ctx, &n,
		m.q(`SELECT COUNT(*) FROM device_connections WHERE device_location = ?`),
		types.NormalizeClientType(deviceLocation))
	if err != nil {
		return false, errors.Wrap(err, "failed to query device connection")
	}
	return n > 0, nil
}

// CreateDeviceConnection records a device location. Recording an existing
// location is a no-op.
func (m *Manager) CreateDeviceConnection(ctx context.Context, deviceLocation string) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO device_connections (id, device_location, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (device_location) DO NOTHING`),
			uuid.NewString(), types.NormalizeClientType(deviceLocation), now())
		return translate(err, "failed to insert device connection")
	})
}

// ListDeviceConnections returns every known device location.
func (m *Manager) ListDeviceConnections(ctx context.Context) ([]*types.DeviceConnection, error) {
	var devices []*types.DeviceConnection
	err := m.db.SelectContext(ctx, &devices,
		`SELECT id, device_location, created_at FROM device_connections ORDER BY device_location`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list device connections")
	}
	return devices, nil
}

// SetLecturerDeviceLocation binds a web user to a device, replacing any
// previous binding.
func (m *Manager) SetLecturerDeviceLocation(ctx context.Context, email, deviceLocation string) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO lecturer_device_locations (email, device_location, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (email) DO UPDATE SET
				device_location = excluded.device_location,
				updated_at = excluded.updated_at`),
			types.NormalizeClientType(email), types.NormalizeClientType(deviceLocation), now())
		return translate(err, "failed to upsert lecturer device location")
	})
}

// GetLecturerDeviceLocation returns the device bound to email.
func (m *Manager) GetLecturerDeviceLocation(ctx context.Context, email string) (string, error) {
	var location string
	err := m.db.GetContext(ctx, &location,
		m.q(`SELECT device_location FROM lecturer_device_locations WHERE email = ?`),
		types.NormalizeClientType(email))
	if err != nil {
		return "", translate(err, "lecturer device location "+email)
	}
	return location, nil
}

// EmailsForDeviceLocation returns every web user bound to a device.
func (m *Manager) EmailsForDeviceLocation(ctx context.Context, deviceLocation string) ([]string, error) {
	var emails []string
	err := m.db.SelectContext(ctx, &emails,
		m.q(`SELECT email FROM lecturer_device_locations WHERE device_location = ? ORDER BY email`),
		types.NormalizeClientType(deviceLocation))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query device bindings")
	}
	return emails, nil
}
