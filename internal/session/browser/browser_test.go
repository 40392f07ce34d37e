package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shi-yan/kerr/internal/mux"
	"github.com/shi-yan/kerr/internal/testutil"
	"github.com/shi-yan/kerr/internal/wire"
)

func setUpSession(t *testing.T, srv *Server) (*mux.Session, func()) {
	t.Helper()
	return testutil.SetUpSession(t, wire.SessionFileBrowser, srv)
}

func TestListDirIncludesDotfiles(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, ".hidden"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "visible.txt"), []byte("y"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sess, cleanup := setUpSession(t, &Server{})
	defer cleanup()

	client := &Client{Session: sess}
	entries, err := client.ListDir(tmp)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names[".hidden"] || !names["visible.txt"] {
		t.Fatalf("missing expected entries: %+v", names)
	}
}

func TestWriteFileDoesNotCreateParents(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "missing", "file.txt")

	sess, cleanup := setUpSession(t, &Server{})
	defer cleanup()

	client := &Client{Session: sess}
	if err := client.WriteFile(target, []byte("data")); err == nil {
		t.Fatal("expected WriteFile to fail when parent directory is missing")
	}
}

func TestDeleteFileRequiresRecursiveFlagForNonEmptyDir(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sess, cleanup := setUpSession(t, &Server{})
	defer cleanup()

	client := &Client{Session: sess}
	if err := client.DeleteFile(dir, false); err == nil {
		t.Fatal("expected delete without recursive flag to fail on non-empty dir")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("directory should still exist: %v", err)
	}

	if err := client.DeleteFile(dir, true); err != nil {
		t.Fatalf("DeleteFile recursive: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory should be gone, stat err = %v", err)
	}
}

func TestReadFileRejectsOversizedFile(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "big.bin")
	if err := os.WriteFile(target, make([]byte, MaxReadFileSize+1), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sess, cleanup := setUpSession(t, &Server{})
	defer cleanup()

	client := &Client{Session: sess}
	if _, err := client.ReadFile(target); err == nil {
		t.Fatal("expected ReadFile to reject a file over 16 MiB")
	}
}

func TestExistsAndMetadataAreNeverFatal(t *testing.T) {
	sess, cleanup := setUpSession(t, &Server{})
	defer cleanup()

	client := &Client{Session: sess}
	exists, err := client.Exists("/definitely/does/not/exist")
	if err != nil {
		t.Fatalf("Exists should not error: %v", err)
	}
	if exists {
		t.Fatal("expected Exists to report false")
	}

	if _, err := client.Metadata("/definitely/does/not/exist"); err == nil {
		t.Fatal("expected Metadata error reply for missing path")
	}

	// Session must still be usable after an Error reply.
	exists, err = client.Exists("/")
	if err != nil {
		t.Fatalf("Exists after Error reply: %v", err)
	}
	if !exists {
		t.Fatal("expected / to exist")
	}
}
