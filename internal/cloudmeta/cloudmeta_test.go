package cloudmeta

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"drivesync/internal/engine/enginetest"
)

func TestWriteAndReadMeta(t *testing.T) {
	fake := enginetest.NewFake()
	store := NewStore(fake, nil)
	ctx := context.Background()

	if err := store.WriteMeta(ctx, "Photos", "dev-1", "laptop"); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	m, err := store.Meta(ctx, "Photos")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if m.DeviceID != "dev-1" {
		t.Errorf("DeviceID = %q, want dev-1", m.DeviceID)
	}
	if m.FolderName != "Photos" {
		t.Errorf("FolderName = %q, want Photos", m.FolderName)
	}
	if m.SyncVersion != metaSyncVersion {
		t.Errorf("SyncVersion = %d, want %d", m.SyncVersion, metaSyncVersion)
	}
}

func TestMetaMissing(t *testing.T) {
	store := NewStore(enginetest.NewFake(), nil)

	_, err := store.Meta(context.Background(), "Ghost")
	if !errors.Is(err, ErrNoMarker) {
		t.Errorf("err = %v, want ErrNoMarker", err)
	}
}

func TestFolderExists(t *testing.T) {
	fake := enginetest.NewFake()
	fake.PutObject("Docs/readme.txt", []byte("hi"), time.Now())
	store := NewStore(fake, nil)
	ctx := context.Background()

	if !store.FolderExists(ctx, "Docs") {
		t.Error("existing folder reported missing")
	}

	fake.Err = errors.New("listing failed")
	if store.FolderExists(ctx, "Docs") {
		t.Error("folder reported present despite listing failure")
	}
}

func TestPublishAndEnumerateConfigs(t *testing.T) {
	fake := enginetest.NewFake()
	store := NewStore(fake, nil)
	ctx := context.Background()

	jobs, _ := json.Marshal([]map[string]string{{"job_id": "j1"}})
	err := store.PublishConfig(ctx, DeviceConfig{
		DeviceID:   "dev-1",
		DeviceName: "laptop",
		Jobs:       jobs,
	})
	if err != nil {
		t.Fatalf("PublishConfig: %v", err)
	}
	err = store.PublishConfig(ctx, DeviceConfig{
		DeviceID:   "dev-2",
		DeviceName: "desktop",
		Jobs:       jobs,
	})
	if err != nil {
		t.Fatalf("PublishConfig dev-2: %v", err)
	}

	// A stray object must be skipped, not break enumeration.
	fake.PutObject(".drive-sync-config/notes.txt", []byte("junk"), time.Now())
	fake.PutObject(".drive-sync-config/device_bad.json", []byte("{broken"), time.Now())

	configs, err := store.DeviceConfigs(ctx)
	if err != nil {
		t.Fatalf("DeviceConfigs: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
	seen := map[string]bool{}
	for _, c := range configs {
		seen[c.DeviceID] = true
		if c.LastUpdated.IsZero() {
			t.Errorf("config %s missing LastUpdated", c.DeviceID)
		}
	}
	if !seen["dev-1"] || !seen["dev-2"] {
		t.Errorf("missing device configs: %v", seen)
	}
}

func TestConfigSingle(t *testing.T) {
	fake := enginetest.NewFake()
	store := NewStore(fake, nil)
	ctx := context.Background()

	if err := store.PublishConfig(ctx, DeviceConfig{DeviceID: "dev-9", DeviceName: "nas"}); err != nil {
		t.Fatalf("PublishConfig: %v", err)
	}

	cfg, err := store.Config(ctx, "dev-9")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.DeviceName != "nas" {
		t.Errorf("DeviceName = %q, want nas", cfg.DeviceName)
	}

	if _, err := store.Config(ctx, "absent"); err == nil {
		t.Error("expected error for absent device config")
	}
}
