// Package cloudmeta reads and writes the small metadata objects the
// client leaves on the remote: per-folder ownership markers and
// per-device config blobs used for cross-device job discovery.
package cloudmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"drivesync/internal/engine"
)

// FolderMarkerName is the object stamped into each synced cloud folder.
const FolderMarkerName = ".drive-sync-meta.json"

// configDir is the remote directory holding per-device config blobs.
const configDir = ".drive-sync-config"

// metaSyncVersion is written into new markers.
const metaSyncVersion = 2

// FolderMeta identifies the device that created a cloud folder.
type FolderMeta struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	CreatedAt   time.Time `json:"created_at"`
	FolderName  string    `json:"folder_name"`
	SyncVersion int       `json:"sync_version"`
}

// DeviceConfig is one device's published job list.
type DeviceConfig struct {
	DeviceID    string          `json:"device_id"`
	DeviceName  string          `json:"device_name"`
	LastUpdated time.Time       `json:"last_updated"`
	Jobs        json.RawMessage `json:"jobs"`
}

// ErrNoMarker is returned when a cloud folder carries no ownership
// marker.
var ErrNoMarker = errors.New("cloud folder has no marker")

// Store accesses remote metadata through the transfer engine.
type Store struct {
	eng    engine.Engine
	logger *log.Logger
}

// NewStore returns a store bound to eng. If logger is nil, a default
// logger is used.
func NewStore(eng engine.Engine, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[cloudmeta] ", log.LstdFlags)
	}
	return &Store{eng: eng, logger: logger}
}

// Meta reads the ownership marker of a remote folder. ErrNoMarker
// means the folder has no marker; other errors mean the marker could
// not be read.
func (s *Store) Meta(ctx context.Context, remotePath string) (FolderMeta, error) {
	obj := path.Join(strings.TrimSuffix(remotePath, "/"), FolderMarkerName)
	data, err := s.eng.ReadObject(ctx, obj)
	if err != nil {
		if errors.Is(err, engine.ErrObjectNotFound) {
			return FolderMeta{}, ErrNoMarker
		}
		return FolderMeta{}, fmt.Errorf("reading folder marker for %s: %w", remotePath, err)
	}
	var m FolderMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return FolderMeta{}, fmt.Errorf("parsing folder marker for %s: %w", remotePath, err)
	}
	return m, nil
}

// WriteMeta stamps a remote folder with this device's ownership marker.
func (s *Store) WriteMeta(ctx context.Context, remotePath, deviceID, deviceName string) error {
	m := FolderMeta{
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		CreatedAt:   time.Now().UTC(),
		FolderName:  path.Base(strings.TrimSuffix(remotePath, "/")),
		SyncVersion: metaSyncVersion,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding folder marker: %w", err)
	}
	obj := path.Join(strings.TrimSuffix(remotePath, "/"), FolderMarkerName)
	if err := s.eng.WriteObject(ctx, obj, data); err != nil {
		return fmt.Errorf("writing folder marker for %s: %w", remotePath, err)
	}
	return nil
}

// FolderExists reports whether the remote folder exists at all.
func (s *Store) FolderExists(ctx context.Context, remotePath string) bool {
	_, err := s.eng.List(ctx, remotePath)
	return err == nil
}

// PublishConfig uploads this device's config blob to the shared config
// directory.
func (s *Store) PublishConfig(ctx context.Context, cfg DeviceConfig) error {
	if cfg.LastUpdated.IsZero() {
		cfg.LastUpdated = time.Now().UTC()
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device config: %w", err)
	}

	if err := s.eng.Mkdir(ctx, configDir); err != nil {
		return fmt.Errorf("preparing config dir: %w", err)
	}
	obj := path.Join(configDir, "device_"+cfg.DeviceID+".json")
	if err := s.eng.WriteObject(ctx, obj, data); err != nil {
		return fmt.Errorf("publishing device config: %w", err)
	}
	s.logger.Printf("published config for device %s (%d bytes)", cfg.DeviceID, len(data))
	return nil
}

// DeviceConfigs downloads and parses every published device config.
// Unparsable blobs are logged and skipped.
func (s *Store) DeviceConfigs(ctx context.Context) ([]DeviceConfig, error) {
	entries, err := s.eng.List(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("listing device configs: %w", err)
	}

	var configs []DeviceConfig
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, "device_") || !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		data, err := s.eng.ReadObject(ctx, path.Join(configDir, e.Name))
		if err != nil {
			s.logger.Printf("cannot read %s: %v", e.Name, err)
			continue
		}
		var cfg DeviceConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			s.logger.Printf("cannot parse %s: %v", e.Name, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Config downloads a single device's published config.
func (s *Store) Config(ctx context.Context, deviceID string) (DeviceConfig, error) {
	obj := path.Join(configDir, "device_"+deviceID+".json")
	data, err := s.eng.ReadObject(ctx, obj)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("reading config for device %s: %w", deviceID, err)
	}
	var cfg DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DeviceConfig{}, fmt.Errorf("parsing config for device %s: %w", deviceID, err)
	}
	return cfg, nil
}
