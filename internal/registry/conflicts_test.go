package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictRuleOrder(t *testing.T) {
	reg, _, identity := testRegistry(t)
	self := identity.DeviceID()
	local := t.TempDir()
	otherLocal := t.TempDir()

	seed := []Job{
		{
			ID: "mine", LocalPath: local, RemotePath: "Photos",
			OriginDeviceID: self, SyncMode: ModeExclusive,
		},
		{
			ID: "their-exclusive", LocalPath: "/elsewhere/a", RemotePath: "Locked",
			OriginDeviceID: "other-device", SyncMode: ModeExclusive,
		},
		{
			ID: "their-shared-open", LocalPath: "/elsewhere/b", RemotePath: "Team",
			OriginDeviceID: "other-device", SyncMode: ModeShared,
			SharedDevices: []SharedDevice{{DeviceID: self}},
		},
		{
			ID: "their-shared-closed", LocalPath: "/elsewhere/c", RemotePath: "Club",
			OriginDeviceID: "other-device", SyncMode: ModeShared,
			SharedDevices: []SharedDevice{{DeviceID: "third-device"}},
		},
	}
	reg.mu.Lock()
	reg.jobs = append(reg.jobs, seed...)
	reg.mu.Unlock()

	tests := []struct {
		name   string
		local  string
		remote string
		want   ConflictType
	}{
		{"exact duplicate", local, "Photos", ConflictDuplicateJob},
		{"duplicate case-insensitive remote", local, "PHOTOS", ConflictDuplicateJob},
		{"duplicate with scheme prefix", local, "proton:/Photos/", ConflictDuplicateJob},
		{"local claimed by other remote", local, "Different", ConflictLocalClaimed},
		{"remote held exclusively", otherLocal, "Locked", ConflictRemoteExclusive},
		{"shared and authorized", otherLocal, "Team", ConflictNone},
		{"shared but not listed", otherLocal, "Club", ConflictSharedNotAuthorized},
		{"completely free", otherLocal, "Fresh", ConflictNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.CheckConflicts(tt.local, tt.remote)
			assert.Equal(t, tt.want, got.Type, "message: %s", got.Message)
			if tt.want != ConflictNone {
				require.NotNil(t, got.Job)
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestConflictDeterministic(t *testing.T) {
	reg, _, _ := testRegistry(t)
	local := t.TempDir()

	_, err := reg.CreateJob(local, "Stable", SyncBisync)
	require.NoError(t, err)

	first := reg.CheckConflicts(local, "Stable")
	for i := 0; i < 10; i++ {
		again := reg.CheckConflicts(local, "Stable")
		assert.Equal(t, first.Type, again.Type)
		assert.Equal(t, first.Message, again.Message)
	}
}

func TestDuplicateCreateNeverSilent(t *testing.T) {
	reg, _, _ := testRegistry(t)
	local := t.TempDir()

	_, err := reg.CreateJob(local, "Photos", SyncBisync)
	require.NoError(t, err)

	_, err = reg.CreateJob(local, "photos/", SyncBisync)
	require.Error(t, err, "duplicate creation must be rejected")
	assert.Len(t, reg.Jobs(), 1)
}

func TestCheckCloudFolderConflicts(t *testing.T) {
	reg, fake, identity := testRegistry(t)
	ctx := context.Background()
	local := t.TempDir()

	t.Run("free folder", func(t *testing.T) {
		got := reg.CheckCloudFolderConflicts(ctx, local, "Empty")
		assert.Equal(t, ConflictNone, got.Type)
	})

	t.Run("marker from this device", func(t *testing.T) {
		require.NoError(t, reg.meta.WriteMeta(ctx, "Mine", identity.DeviceID(), "me"))
		got := reg.CheckCloudFolderConflicts(ctx, local, "Mine")
		assert.Equal(t, ConflictCloudFolderSameDevice, got.Type)
		require.NotNil(t, got.Meta)
	})

	t.Run("marker from another device", func(t *testing.T) {
		require.NoError(t, reg.meta.WriteMeta(ctx, "Theirs", "other-device", "desktop"))
		got := reg.CheckCloudFolderConflicts(ctx, local, "Theirs")
		assert.Equal(t, ConflictCloudFolderDifferentDevice, got.Type)
		assert.Contains(t, got.Message, "desktop")
	})

	t.Run("legacy folder without marker", func(t *testing.T) {
		fake.PutObject("Legacy/old.txt", []byte("x"), time.Now())
		got := reg.CheckCloudFolderConflicts(ctx, local, "Legacy")
		assert.Equal(t, ConflictCloudFolderDifferentDevice, got.Type)
		assert.Nil(t, got.Meta)
	})

	t.Run("registry conflicts take precedence", func(t *testing.T) {
		_, err := reg.CreateJob(local, "Claimed", SyncBisync)
		require.NoError(t, err)
		got := reg.CheckCloudFolderConflicts(ctx, local, "Claimed")
		assert.Equal(t, ConflictDuplicateJob, got.Type)
	})
}
