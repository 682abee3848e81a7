// Package pathcheck inspects local paths before they are accepted as
// sync roots: filesystem type, mount state, free space, per-file size
// limits, and collisions with folders owned by other devices.
package pathcheck

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FSType identifies the filesystem backing a path.
type FSType string

const (
	FSExt4    FSType = "ext4"
	FSXFS     FSType = "xfs"
	FSBtrfs   FSType = "btrfs"
	FSVFAT    FSType = "vfat"
	FSTmpfs   FSType = "tmpfs"
	FSNFS     FSType = "nfs"
	FSCIFS    FSType = "cifs"
	FSFUSE    FSType = "fuse"
	FSUnknown FSType = "unknown"
)

// Statfs magic numbers from linux/magic.h.
const (
	magicVFAT  = 0x4d44
	magicExt4  = 0xEF53
	magicXFS   = 0x58465342
	magicBtrfs = 0x9123683E
	magicTmpfs = 0x01021994
	magicNFS   = 0x6969
	magicCIFS  = 0xFF534D42
	magicFUSE  = 0x65735546
)

// fat32MaxFileSize is the largest file FAT32 can hold.
const fat32MaxFileSize = 4*1024*1024*1024 - 1

// fullWarnRatio is the used-space fraction above which a volume is
// reported as nearly full.
const fullWarnRatio = 0.90

// Info describes the volume backing a path.
type Info struct {
	Path        string
	Type        FSType
	ReadOnly    bool
	MountPoint  string
	TotalBytes  uint64
	FreeBytes   uint64
	NearlyFull  bool
	MaxFileSize int64 // 0 means no practical limit
}

// Status is the result of Check.
type Status struct {
	Exists   bool
	Writable bool
	Volume   Info
	Warnings []string
	// OK is false when the path cannot serve as a sync root; Reason
	// says why.
	OK     bool
	Reason string
}

// Check validates path as a sync root. The path itself may not exist
// yet; volume checks run against the nearest existing ancestor.
// requiredBytes, when non-zero, is checked against free space and the
// filesystem's per-file size limit.
func Check(path string, requiredBytes int64) Status {
	st := Status{}

	_, err := os.Stat(path)
	st.Exists = err == nil

	probe := path
	if !st.Exists {
		probe = nearestExisting(path)
	}

	info, err := Inspect(probe)
	if err != nil {
		st.Reason = fmt.Sprintf("cannot inspect volume for %s: %v", path, err)
		return st
	}
	st.Volume = info

	if info.ReadOnly {
		st.Reason = fmt.Sprintf("%s is on a read-only filesystem", path)
		return st
	}
	st.Writable = writable(probe)
	if !st.Writable {
		st.Reason = fmt.Sprintf("%s is not writable", probe)
		return st
	}

	if requiredBytes > 0 {
		if info.MaxFileSize > 0 && requiredBytes > info.MaxFileSize {
			st.Reason = fmt.Sprintf("%s filesystem cannot hold files of %d bytes", info.Type, requiredBytes)
			return st
		}
		if uint64(requiredBytes) > info.FreeBytes {
			st.Reason = fmt.Sprintf("only %d bytes free on volume, need %d", info.FreeBytes, requiredBytes)
			return st
		}
	}

	if info.NearlyFull {
		st.Warnings = append(st.Warnings, fmt.Sprintf("volume backing %s is over 90%% full", path))
	}
	if info.MaxFileSize > 0 {
		st.Warnings = append(st.Warnings, fmt.Sprintf("%s filesystem limits files to %d bytes", info.Type, info.MaxFileSize))
	}
	switch info.Type {
	case FSNFS, FSCIFS:
		st.Warnings = append(st.Warnings, fmt.Sprintf("%s is on a network filesystem (%s), sync may be slow", path, info.Type))
	}

	st.OK = true
	return st
}

// Inspect gathers volume information for path. The path must exist.
func Inspect(path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	info := Info{
		Path:       path,
		Type:       fsType(int64(st.Type)),
		ReadOnly:   st.Flags&unix.MS_RDONLY != 0,
		TotalBytes: st.Blocks * uint64(st.Bsize),
		FreeBytes:  st.Bavail * uint64(st.Bsize),
	}
	if info.TotalBytes > 0 {
		used := float64(info.TotalBytes-info.FreeBytes) / float64(info.TotalBytes)
		info.NearlyFull = used > fullWarnRatio
	}
	if info.Type == FSVFAT {
		info.MaxFileSize = fat32MaxFileSize
	}

	mount, err := mountPoint(path)
	if err == nil {
		info.MountPoint = mount
	}
	return info, nil
}

// DefinitelyMissing reports whether path is known to not exist. Any
// stat failure other than ENOENT returns false: a path that merely
// cannot be checked must never be treated as gone.
func DefinitelyMissing(path string) bool {
	_, err := os.Lstat(path)
	if err == nil {
		return false
	}
	return os.IsNotExist(err)
}

// DefaultSyncRoot returns the configured default parent directory for
// new sync folders, or ~/DriveSync when root is empty.
func DefaultSyncRoot(root string) string {
	if root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "DriveSync"
	}
	return filepath.Join(home, "DriveSync")
}

// EnsureDefaultSyncRoot creates the default sync root if needed and
// returns it.
func EnsureDefaultSyncRoot(root string) (string, error) {
	dir := DefaultSyncRoot(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating sync root %s: %w", dir, err)
	}
	return dir, nil
}

// nearestExisting walks up from path to the closest directory that
// exists.
func nearestExisting(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		return "/"
	}
	for p != "/" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		p = filepath.Dir(p)
	}
	return "/"
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// mountPoint walks up from path until the parent directory lives on a
// different device.
func mountPoint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var st unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	dev := st.Dev

	for abs != "/" {
		parent := filepath.Dir(abs)
		var pst unix.Stat_t
		if err := unix.Stat(parent, &pst); err != nil {
			return "", fmt.Errorf("stat %s: %w", parent, err)
		}
		if pst.Dev != dev {
			return abs, nil
		}
		abs = parent
	}
	return "/", nil
}

func fsType(magic int64) FSType {
	switch magic {
	case magicVFAT:
		return FSVFAT
	case magicExt4:
		return FSExt4
	case magicXFS:
		return FSXFS
	case magicBtrfs:
		return FSBtrfs
	case magicTmpfs:
		return FSTmpfs
	case magicNFS:
		return FSNFS
	case magicCIFS:
		return FSCIFS
	case magicFUSE:
		return FSFUSE
	default:
		return FSUnknown
	}
}
