package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeStub installs a fake rclone script so tests can drive the exec
// layer without a real binary.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rclone")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestQualify(t *testing.T) {
	r := NewRclone(Options{Remote: "drive"}, nil)

	tests := []struct {
		in   string
		want string
	}{
		{"Photos", "drive:Photos"},
		{"Photos/2024", "drive:Photos/2024"},
		{"drive:Photos", "drive:Photos"},
		{"proton:/Docs", "proton:/Docs"},
	}
	for _, tt := range tests {
		if got := r.qualify(tt.in); got != tt.want {
			t.Errorf("qualify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNextPortWraps(t *testing.T) {
	r := NewRclone(Options{PortBase: 5572, PortCount: 3}, nil)

	got := []int{r.nextPort(), r.nextPort(), r.nextPort(), r.nextPort()}
	want := []int{5572, 5573, 5574, 5572}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("port %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSyncState(t *testing.T) {
	stateDir := t.TempDir()
	r := NewRclone(Options{Remote: "drive", StateDir: stateDir}, nil)

	local := "/home/user/Photos"
	remote := "Photos"

	if r.HasPriorSyncState(local, remote) {
		t.Error("expected no prior state in empty dir")
	}

	base := r.stateFileBase(local, remote)
	if err := os.WriteFile(base+".path1.lst", []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".path2.lst", []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	if !r.HasPriorSyncState(local, remote) {
		t.Error("expected prior state after writing baseline")
	}

	if err := r.PruneSyncState(local, remote); err != nil {
		t.Fatalf("PruneSyncState: %v", err)
	}
	if r.HasPriorSyncState(local, remote) {
		t.Error("state survived prune")
	}

	left, err := filepath.Glob(filepath.Join(stateDir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("leftover state files: %v", left)
	}
}

func TestEscapeFilter(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain.txt", "plain.txt"},
		{"a*.txt", `a\*.txt`},
		{"[draft].md", `\[draft\].md`},
		{"what?.jpg", `what\?.jpg`},
		{"{x,y}.bin", `\{x,y\}.bin`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeFilter(tt.in); got != tt.want {
			t.Errorf("escapeFilter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCopyBatchEscapesNames(t *testing.T) {
	dir := t.TempDir()
	argFile := filepath.Join(dir, "args")
	stub := writeStub(t, `printf '%s\n' "$@" > `+argFile)
	r := NewRclone(Options{Binary: stub, Remote: "drive"}, nil)

	err := r.CopyBatch(context.Background(), "Docs", dir, []string{"a*.txt", "[draft].md"})
	if err != nil {
		t.Fatalf("CopyBatch: %v", err)
	}

	args, err := os.ReadFile(argFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`a\*.txt`, `\[draft\].md`} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args missing literal pattern %q:\n%s", want, args)
		}
	}
}

func TestList(t *testing.T) {
	stub := writeStub(t, `echo '[{"Path":"a.txt","Name":"a.txt","Size":12,"IsDir":false},{"Path":"sub","Name":"sub","Size":0,"IsDir":true}]'`)
	r := NewRclone(Options{Binary: stub, Remote: "drive"}, nil)

	entries, err := r.List(context.Background(), "Photos")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "a.txt" || entries[0].Size != 12 || entries[0].IsDir {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].IsDir {
		t.Errorf("expected sub to be a dir: %+v", entries[1])
	}
}

func TestListFailure(t *testing.T) {
	stub := writeStub(t, `echo "directory not found" >&2; exit 3`)
	r := NewRclone(Options{Binary: stub}, nil)

	if _, err := r.List(context.Background(), "Missing"); err == nil {
		t.Fatal("expected error from failing list")
	}
}

func TestVersion(t *testing.T) {
	stub := writeStub(t, `echo "rclone v1.68.2"; echo "- os/version: linux"`)
	r := NewRclone(Options{Binary: stub}, nil)

	v, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "v1.68.2" {
		t.Errorf("Version = %q, want v1.68.2", v)
	}
}

func TestStartSyncModes(t *testing.T) {
	// The stub records its arguments so the test can assert on the
	// chosen subcommand.
	dir := t.TempDir()
	argFile := filepath.Join(dir, "args")
	stub := writeStub(t, `echo "$@" > `+argFile)

	stateDir := t.TempDir()
	r := NewRclone(Options{Binary: stub, Remote: "drive", StateDir: stateDir, PortBase: 5572, PortCount: 29}, nil)

	local := filepath.Join(dir, "local")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		req     SyncRequest
		seed    bool // create a bisync baseline first
		wantSub string
	}{
		{"first bisync runs copy", SyncRequest{LocalPath: local, RemotePath: "Docs", Mode: ModeBisync}, false, "copy"},
		{"established bisync", SyncRequest{LocalPath: local, RemotePath: "Docs", Mode: ModeBisync}, true, "bisync"},
		{"resync", SyncRequest{LocalPath: local, RemotePath: "Docs", Mode: ModeBisync, Resync: true}, false, "bisync"},
		{"one-way sync", SyncRequest{LocalPath: local, RemotePath: "Docs", Mode: ModeSync}, false, "sync"},
		{"one-way copy", SyncRequest{LocalPath: local, RemotePath: "Docs", Mode: ModeCopy}, false, "copy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.seed {
				base := r.stateFileBase(tt.req.LocalPath, tt.req.RemotePath)
				if err := os.WriteFile(base+".path1.lst", nil, 0o644); err != nil {
					t.Fatal(err)
				}
				defer r.PruneSyncState(tt.req.LocalPath, tt.req.RemotePath)
			}

			proc, err := r.StartSync(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("StartSync: %v", err)
			}
			<-proc.Done()
			if err := proc.Err(); err != nil {
				t.Fatalf("process failed: %v", err)
			}

			args, err := os.ReadFile(argFile)
			if err != nil {
				t.Fatal(err)
			}
			fields := string(args)
			if got := firstField(fields); got != tt.wantSub {
				t.Errorf("subcommand = %q, want %q (args: %s)", got, tt.wantSub, fields)
			}
		})
	}
}

func TestStartSyncUnknownMode(t *testing.T) {
	r := NewRclone(Options{}, nil)
	if _, err := r.StartSync(context.Background(), SyncRequest{Mode: "mirror"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func firstField(s string) string {
	for i, c := range s {
		if c == ' ' {
			return s[:i]
		}
	}
	return s
}
