package pathcheck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalMarkerName is the hidden file identifying a directory as a sync
// root created by this client.
const LocalMarkerName = ".drive-sync-local.json"

// markerSyncVersion is written into new markers.
const markerSyncVersion = 2

// LocalMarker records which device set up a sync folder and what it is
// bound to on the remote.
type LocalMarker struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	RemotePath  string    `json:"remote_path"`
	CreatedAt   time.Time `json:"created_at"`
	SyncVersion int       `json:"sync_version"`
}

// ReadLocalMarker loads the marker from dir. Returns os.ErrNotExist
// (wrapped) when the directory carries no marker.
func ReadLocalMarker(dir string) (LocalMarker, error) {
	data, err := os.ReadFile(filepath.Join(dir, LocalMarkerName))
	if err != nil {
		return LocalMarker{}, fmt.Errorf("reading local marker in %s: %w", dir, err)
	}
	var m LocalMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return LocalMarker{}, fmt.Errorf("parsing local marker in %s: %w", dir, err)
	}
	return m, nil
}

// WriteLocalMarker stamps dir with a marker for the given device and
// remote binding.
func WriteLocalMarker(dir, deviceID, deviceName, remotePath string) error {
	m := LocalMarker{
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		RemotePath:  remotePath,
		CreatedAt:   time.Now().UTC(),
		SyncVersion: markerSyncVersion,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding local marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, LocalMarkerName), data, 0o644); err != nil {
		return fmt.Errorf("writing local marker in %s: %w", dir, err)
	}
	return nil
}
