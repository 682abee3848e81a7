package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestNewGeneratesIdentity(t *testing.T) {
	dir := t.TempDir()

	id, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{8}$`)
	if !pattern.MatchString(id.DeviceID()) {
		t.Errorf("DeviceID %q does not match <machine8>-<salt8>", id.DeviceID())
	}
	if id.DeviceName() == "" {
		t.Error("expected non-empty device name")
	}
	if id.FirstSeen().IsZero() {
		t.Error("expected FirstSeen to be set")
	}

	if _, err := os.Stat(filepath.Join(dir, "device.json")); err != nil {
		t.Errorf("device.json not written: %v", err)
	}
}

func TestIdentityStableAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, nil)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	second, err := New(dir, nil)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}

	if first.DeviceID() != second.DeviceID() {
		t.Errorf("DeviceID changed across loads: %q then %q",
			first.DeviceID(), second.DeviceID())
	}
	if !first.FirstSeen().Equal(second.FirstSeen()) {
		t.Errorf("FirstSeen changed: %s then %s", first.FirstSeen(), second.FirstSeen())
	}
}

func TestCorruptFileRegenerated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	id, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if id.DeviceID() == "" {
		t.Error("expected regenerated identity")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk identityFile
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("rewritten file is not valid JSON: %v", err)
	}
	if onDisk.DeviceID != id.DeviceID() {
		t.Errorf("on-disk ID %q != in-memory ID %q", onDisk.DeviceID, id.DeviceID())
	}
	if onDisk.MachineID == "" {
		t.Error("expected machine_id to be recorded")
	}
}

func TestSetDeviceName(t *testing.T) {
	dir := t.TempDir()

	id, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	origID := id.DeviceID()

	if err := id.SetDeviceName("laptop"); err != nil {
		t.Fatalf("SetDeviceName: %v", err)
	}
	if id.DeviceName() != "laptop" {
		t.Errorf("DeviceName = %q, want laptop", id.DeviceName())
	}
	if id.DeviceID() != origID {
		t.Errorf("rename changed DeviceID from %q to %q", origID, id.DeviceID())
	}

	reloaded, err := New(dir, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DeviceName() != "laptop" {
		t.Errorf("rename not persisted, got %q", reloaded.DeviceName())
	}
}

func TestIsSameDevice(t *testing.T) {
	id, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !id.IsSameDevice(id.DeviceID()) {
		t.Error("own ID not recognized")
	}
	if id.IsSameDevice("deadbeef-00000000") {
		t.Error("foreign ID recognized as own")
	}
	if id.IsSameDevice("") {
		t.Error("empty ID must never match")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := generateID("machine")
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
