package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verdant-home/verdant-core/internal/infrastructure/database"
)

// newTestRepo opens a fresh migrated SQLite database for one test.
func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	repo := NewSQLiteRepository(db.DB)
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return repo
}

func testDevice(id string) *Device {
	manufacturer := "EcoWare"
	return &Device{
		ID:             id,
		Name:           "Kitchen Bin",
		Type:           TypeBin,
		ConnectionType: ConnectionBLE,
		Capabilities:   []Capability{CapWeightRead, CapFillLevelRead},
		Manufacturer:   &manufacturer,
		Metadata:       Metadata{"location": "kitchen"},
	}
}

func TestSaveAndGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dev := testDevice("bin-1")
	if err := repo.Save(ctx, dev); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "bin-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Kitchen Bin" {
		t.Errorf("Name = %q, want %q", got.Name, "Kitchen Bin")
	}
	if got.Type != TypeBin {
		t.Errorf("Type = %q, want %q", got.Type, TypeBin)
	}
	if got.ConnectionStatus != StatusDisconnected {
		t.Errorf("ConnectionStatus = %q, want %q", got.ConnectionStatus, StatusDisconnected)
	}
	if len(got.Capabilities) != 2 {
		t.Errorf("Capabilities = %v, want 2 entries", got.Capabilities)
	}
	if got.Manufacturer == nil || *got.Manufacturer != "EcoWare" {
		t.Errorf("Manufacturer = %v, want EcoWare", got.Manufacturer)
	}
	if got.Metadata["location"] != "kitchen" {
		t.Errorf("Metadata[location] = %v, want kitchen", got.Metadata["location"])
	}
	if got.LastSync.IsZero() {
		t.Error("LastSync not refreshed by Save")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSave_UpsertRefreshesLastSync(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dev := testDevice("bin-1")
	if err := repo.Save(ctx, dev); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	firstSync := dev.LastSync
	created := dev.CreatedAt

	time.Sleep(5 * time.Millisecond)

	dev.Name = "Garage Bin"
	if err := repo.Save(ctx, dev); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "bin-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Garage Bin" {
		t.Errorf("Name = %q, want %q", got.Name, "Garage Bin")
	}
	if !got.LastSync.After(firstSync) {
		t.Errorf("LastSync = %v, want after %v", got.LastSync, firstSync)
	}
	if !got.CreatedAt.Equal(created.Truncate(time.Second)) {
		t.Errorf("CreatedAt changed on upsert: %v != %v", got.CreatedAt, created)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("GetAll() = %d devices after upsert, want 1", len(all))
	}
}

func TestSave_Validation(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		name   string
		mutate func(*Device)
	}{
		{"missing id", func(d *Device) { d.ID = "" }},
		{"missing name", func(d *Device) { d.Name = "" }},
		{"unknown type", func(d *Device) { d.Type = "toaster-drone" }},
		{"unknown connection type", func(d *Device) { d.ConnectionType = "carrier-pigeon" }},
		{"unknown connection status", func(d *Device) { d.ConnectionStatus = "sideways" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testDevice("bin-1")
			tt.mutate(dev)
			if err := repo.Save(context.Background(), dev); !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("Save() error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestGetByType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bin := testDevice("bin-1")
	monitor := testDevice("em-1")
	monitor.Name = "Mains Monitor"
	monitor.Type = TypeEnergyMonitor
	for _, d := range []*Device{bin, monitor} {
		if err := repo.Save(ctx, d); err != nil {
			t.Fatalf("Save(%s) error = %v", d.ID, err)
		}
	}

	got, err := repo.GetByType(ctx, TypeEnergyMonitor)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "em-1" {
		t.Errorf("GetByType(energy-monitor) = %v, want [em-1]", got)
	}
}

func TestGetConnected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"bin-1", "bin-2", "bin-3"} {
		if err := repo.Save(ctx, testDevice(id)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}
	if err := repo.UpdateConnectionStatus(ctx, "bin-2", StatusConnected); err != nil {
		t.Fatalf("UpdateConnectionStatus() error = %v", err)
	}

	got, err := repo.GetConnected(ctx)
	if err != nil {
		t.Fatalf("GetConnected() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "bin-2" {
		t.Errorf("GetConnected() = %v, want [bin-2]", got)
	}
}

func TestUpdateConnectionStatus_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateConnectionStatus(context.Background(), "ghost", StatusConnected)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateConnectionStatus() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, testDevice("bin-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Delete(ctx, "bin-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "bin-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "bin-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDeepCopy_Isolation(t *testing.T) {
	original := testDevice("bin-1")
	cpy := original.DeepCopy()

	cpy.Name = "Changed"
	cpy.Capabilities[0] = CapPowerRead
	cpy.Metadata["location"] = "garage"

	if original.Name != "Kitchen Bin" {
		t.Error("copy mutation leaked into original Name")
	}
	if original.Capabilities[0] != CapWeightRead {
		t.Error("copy mutation leaked into original Capabilities")
	}
	if original.Metadata["location"] != "kitchen" {
		t.Error("copy mutation leaked into original Metadata")
	}

	var nilDevice *Device
	if nilDevice.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}
