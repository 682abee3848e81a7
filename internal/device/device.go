// Package device manages the stable identity of this machine.
//
// A device ID is derived from the machine ID plus a random salt, then
// persisted so it survives restarts. Other devices sharing a sync job
// use the ID to attribute changes and scope shared folders.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// identityFile is the on-disk representation under the config dir.
type identityFile struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	FirstSeen  time.Time `json:"first_seen"`
	MachineID  string    `json:"machine_id"`
}

// Identity is this device's persistent identity. Construct one with New
// and inject it; the ID never changes while the identity file exists.
type Identity struct {
	path   string
	logger *log.Logger

	mu   sync.Mutex
	info identityFile
}

// New loads the identity from device.json in dir, generating and
// persisting a fresh one on first run. A persistence failure is logged
// and the in-memory identity stays valid.
func New(dir string, logger *log.Logger) (*Identity, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[device] ", log.LstdFlags)
	}
	id := &Identity{
		path:   filepath.Join(dir, "device.json"),
		logger: logger,
	}

	data, err := os.ReadFile(id.path)
	if err == nil {
		var info identityFile
		if jerr := json.Unmarshal(data, &info); jerr == nil && info.DeviceID != "" {
			id.info = info
			return id, nil
		}
		logger.Printf("corrupt identity file %s, regenerating", id.path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading device identity: %w", err)
	}

	machine := machineID()
	id.info = identityFile{
		DeviceID:   generateID(machine),
		DeviceName: defaultName(),
		FirstSeen:  time.Now().UTC(),
		MachineID:  machine,
	}
	if err := id.persist(); err != nil {
		logger.Printf("cannot persist identity: %v", err)
	} else {
		logger.Printf("registered device %s (%s)", id.info.DeviceID, id.info.DeviceName)
	}
	return id, nil
}

// DeviceID returns the stable device identifier.
func (d *Identity) DeviceID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.DeviceID
}

// DeviceName returns the human-readable device name.
func (d *Identity) DeviceName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.DeviceName
}

// FirstSeen returns when this identity was first created.
func (d *Identity) FirstSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.FirstSeen
}

// IsSameDevice reports whether id names this device.
func (d *Identity) IsSameDevice(id string) bool {
	return id != "" && id == d.DeviceID()
}

// SetDeviceName renames the device and persists immediately. The name
// change holds in memory even if persisting fails.
func (d *Identity) SetDeviceName(name string) error {
	d.mu.Lock()
	d.info.DeviceName = name
	d.mu.Unlock()

	if err := d.persist(); err != nil {
		d.logger.Printf("cannot persist device name: %v", err)
		return err
	}
	return nil
}

func (d *Identity) persist() error {
	d.mu.Lock()
	info := d.info
	d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("creating identity dir: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device identity: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing device identity: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("committing device identity: %w", err)
	}
	return nil
}

// generateID builds an ID of the form <machine8>-<salt8>: the first 8
// hex chars of a SHA-256 over the machine ID, then 8 random hex chars.
// The salt keeps two accounts on one machine distinct.
func generateID(machine string) string {
	sum := sha256.Sum256([]byte(machine))
	prefix := hex.EncodeToString(sum[:])[:8]
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "-" + salt
}

// machineID reads the systemd machine ID, falling back to the dbus
// copy, then to hostname plus user for systems without either.
func machineID() string {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	host, _ := os.Hostname()
	return host + "-" + os.Getenv("USER")
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unnamed-device"
	}
	return host
}
