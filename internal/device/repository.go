package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// Initialize verifies the repository is ready for use.
	// Returns ErrNotMigrated if the schema has not been applied.
	Initialize(ctx context.Context) error

	// GetAll retrieves all devices.
	GetAll(ctx context.Context) ([]Device, error)

	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByType retrieves all devices of a specific type.
	GetByType(ctx context.Context, deviceType DeviceType) ([]Device, error)

	// GetConnected retrieves all devices whose connection status is
	// connected.
	GetConnected(ctx context.Context) ([]Device, error)

	// Save upserts a device and refreshes its last-sync timestamp.
	Save(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateConnectionStatus updates only the connection status of a
	// device. Optimised for frequent transitions from the transport.
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// bootstrap schema applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Initialize verifies the devices table exists. Schema DDL is owned by
// the database package; this repository never creates tables.
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'devices'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotMigrated
	}
	if err != nil {
		return fmt.Errorf("checking devices table: %w", err)
	}
	return nil
}

const deviceColumns = `id, name, type, connection_type, connection_status,
		capabilities, manufacturer, model, metadata, last_sync, created_at, updated_at`

// GetAll retrieves all devices ordered by name.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByType retrieves all devices of a specific type.
func (r *SQLiteRepository) GetByType(ctx context.Context, deviceType DeviceType) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE type = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(deviceType))
}

// GetConnected retrieves all currently connected devices.
func (r *SQLiteRepository) GetConnected(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE connection_status = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(StatusConnected))
}

// Save upserts a device. The last-sync timestamp is refreshed to now;
// created_at is preserved on update.
func (r *SQLiteRepository) Save(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	capsJSON, err := json.Marshal(device.Capabilities)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}
	if device.Metadata == nil {
		device.Metadata = Metadata{}
	}
	metadataJSON, err := json.Marshal(device.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	device.LastSync = now
	if device.ConnectionStatus == "" {
		device.ConnectionStatus = StatusDisconnected
	}

	query := `
		INSERT INTO devices (
			id, name, type, connection_type, connection_status,
			capabilities, manufacturer, model, metadata, last_sync,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			connection_type = excluded.connection_type,
			connection_status = excluded.connection_status,
			capabilities = excluded.capabilities,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			metadata = excluded.metadata,
			last_sync = excluded.last_sync,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Type),
		string(device.ConnectionType),
		string(device.ConnectionStatus),
		string(capsJSON),
		nullableString(device.Manufacturer),
		nullableString(device.Model),
		string(metadataJSON),
		device.LastSync.UnixMilli(),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateConnectionStatus updates only the connection status column.
func (r *SQLiteRepository) UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error {
	if !validConnectionStatus(status) {
		return fmt.Errorf("%w: unrecognised connection status %q", ErrInvalidDevice, status)
	}

	query := `UPDATE devices SET connection_status = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// queryDevices runs a multi-row device query and scans all results.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans one devices row into a Device.
func scanDevice(row scanner) (*Device, error) {
	var (
		d            Device
		capsJSON     string
		metadataJSON string
		manufacturer sql.NullString
		model        sql.NullString
		lastSync     int64
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&d.ID, &d.Name, (*string)(&d.Type),
		(*string)(&d.ConnectionType), (*string)(&d.ConnectionStatus),
		&capsJSON, &manufacturer, &model, &metadataJSON,
		&lastSync, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	if manufacturer.Valid {
		d.Manufacturer = &manufacturer.String
	}
	if model.Valid {
		d.Model = &model.String
	}
	if lastSync > 0 {
		d.LastSync = time.UnixMilli(lastSync).UTC()
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

// nullableString converts *string to a driver-friendly value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
