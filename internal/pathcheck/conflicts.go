package pathcheck

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ConflictKind classifies what stands in the way of using a local path
// as a sync root.
type ConflictKind int

const (
	// ConflictNone: the path is absent or an unmarked usable folder.
	ConflictNone ConflictKind = iota
	// ConflictInvalidMount: the backing volume cannot be inspected.
	ConflictInvalidMount
	// ConflictReadOnly: the volume is mounted read-only.
	ConflictReadOnly
	// ConflictUnwritable: no write permission.
	ConflictUnwritable
	// ConflictFileInWay: a regular file occupies the path.
	ConflictFileInWay
	// ConflictResume: folder already marked by this device; syncing
	// can resume.
	ConflictResume
	// ConflictOwnership: folder marked by a different device.
	ConflictOwnership
	// ConflictUnknownFolder: folder exists with no marker.
	ConflictUnknownFolder
)

// ConflictInfo describes the outcome of CheckConflicts.
type ConflictInfo struct {
	Kind    ConflictKind
	Message string
	// Marker is set for ConflictResume and ConflictOwnership.
	Marker *LocalMarker
}

// CheckConflicts decides, in order, whether path can become a sync root
// for the device with deviceID: volume problems first, then occupancy,
// then ownership via the local marker.
func CheckConflicts(path, deviceID string) ConflictInfo {
	probe := path
	fi, statErr := os.Stat(path)
	if statErr != nil {
		probe = nearestExisting(path)
	}

	info, err := Inspect(probe)
	if err != nil {
		return ConflictInfo{
			Kind:    ConflictInvalidMount,
			Message: fmt.Sprintf("cannot inspect volume for %s: %v", path, err),
		}
	}
	if info.ReadOnly {
		return ConflictInfo{
			Kind:    ConflictReadOnly,
			Message: fmt.Sprintf("%s is on a read-only filesystem", path),
		}
	}
	if !writable(probe) {
		return ConflictInfo{
			Kind:    ConflictUnwritable,
			Message: fmt.Sprintf("%s is not writable", probe),
		}
	}

	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return ConflictInfo{Kind: ConflictNone, Message: "path does not exist yet"}
		}
		return ConflictInfo{
			Kind:    ConflictInvalidMount,
			Message: fmt.Sprintf("cannot stat %s: %v", path, statErr),
		}
	}
	if !fi.IsDir() {
		return ConflictInfo{
			Kind:    ConflictFileInWay,
			Message: fmt.Sprintf("%s exists and is not a directory", path),
		}
	}

	marker, err := ReadLocalMarker(path)
	if err == nil {
		if marker.DeviceID == deviceID {
			return ConflictInfo{
				Kind:    ConflictResume,
				Message: fmt.Sprintf("%s was already set up by this device, sync can resume", path),
				Marker:  &marker,
			}
		}
		return ConflictInfo{
			Kind: ConflictOwnership,
			Message: fmt.Sprintf("%s is managed by device %s (%s)",
				path, marker.DeviceID, marker.DeviceName),
			Marker: &marker,
		}
	}

	if empty, eerr := dirEmpty(path); eerr == nil && !empty {
		return ConflictInfo{
			Kind:    ConflictUnknownFolder,
			Message: fmt.Sprintf("%s already contains files not tracked by sync", path),
		}
	}
	return ConflictInfo{Kind: ConflictNone, Message: "empty folder, ready to use"}
}

func dirEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
