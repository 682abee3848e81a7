package pathcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	info, err := Inspect(dir)
	require.NoError(t, err)
	assert.NotZero(t, info.TotalBytes)
	assert.NotEmpty(t, info.MountPoint)
}

func TestInspectMissing(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCheckWritableDir(t *testing.T) {
	dir := t.TempDir()

	st := Check(dir, 0)
	assert.True(t, st.OK, "reason: %s", st.Reason)
	assert.True(t, st.Exists)
	assert.True(t, st.Writable)
}

func TestCheckAbsentPath(t *testing.T) {
	st := Check(filepath.Join(t.TempDir(), "new", "folder"), 0)
	assert.True(t, st.OK, "reason: %s", st.Reason)
	assert.False(t, st.Exists)
}

func TestCheckRequiredBytesTooLarge(t *testing.T) {
	// More than any test volume will have free.
	st := Check(t.TempDir(), 1<<62)
	assert.False(t, st.OK)
	assert.NotEmpty(t, st.Reason)
}

func TestDefinitelyMissing(t *testing.T) {
	dir := t.TempDir()

	assert.False(t, DefinitelyMissing(dir), "existing dir reported missing")
	assert.True(t, DefinitelyMissing(filepath.Join(dir, "gone")))

	// A path below an unreadable directory cannot be confirmed missing.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.Mkdir(blocked, 0o755))
	inner := filepath.Join(blocked, "inner")
	require.NoError(t, os.WriteFile(inner, []byte("x"), 0o644))
	require.NoError(t, os.Chmod(blocked, 0o000))
	defer os.Chmod(blocked, 0o755)

	if os.Getuid() != 0 {
		assert.False(t, DefinitelyMissing(inner),
			"unreadable path must not be treated as missing")
	}
}

func TestFSType(t *testing.T) {
	tests := []struct {
		magic int64
		want  FSType
	}{
		{magicExt4, FSExt4},
		{magicVFAT, FSVFAT},
		{magicXFS, FSXFS},
		{magicBtrfs, FSBtrfs},
		{magicTmpfs, FSTmpfs},
		{magicNFS, FSNFS},
		{magicCIFS, FSCIFS},
		{magicFUSE, FSFUSE},
		{0xDEADBEEF, FSUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fsType(tt.magic), "magic %#x", tt.magic)
	}
}

func TestDefaultSyncRoot(t *testing.T) {
	assert.Equal(t, "/data/sync", DefaultSyncRoot("/data/sync"))

	root := DefaultSyncRoot("")
	assert.Contains(t, root, "DriveSync")
}

func TestEnsureDefaultSyncRoot(t *testing.T) {
	want := filepath.Join(t.TempDir(), "roots", "DriveSync")

	got, err := EnsureDefaultSyncRoot(want)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.DirExists(t, got)
}
