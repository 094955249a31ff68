package pathcopy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-treebackup/pkg/plog"
)

// faultyFS wraps OSFS and fails the operations registered for a path.
type faultyFS struct {
	*OSFS
	listErr  map[string]error
	mkdirErr map[string]error
	copyErr  map[string]error
	listed   []string
	// afterCopy, when set, runs after every successful copy.
	afterCopy func()
}

func newFaultyFS() *faultyFS {
	return &faultyFS{
		OSFS:     NewOSFS(4096),
		listErr:  map[string]error{},
		mkdirErr: map[string]error{},
		copyErr:  map[string]error{},
	}
}

func (f *faultyFS) List(dir string) (Listing, error) {
	f.listed = append(f.listed, dir)
	if err, ok := f.listErr[dir]; ok {
		return Listing{}, err
	}
	return f.OSFS.List(dir)
}

func (f *faultyFS) MakeDir(dir string) error {
	if err, ok := f.mkdirErr[dir]; ok {
		return err
	}
	return f.OSFS.MakeDir(dir)
}

func (f *faultyFS) CopyFile(src, dst string) (int64, error) {
	if err, ok := f.copyErr[src]; ok {
		return 0, err
	}
	n, err := f.OSFS.CopyFile(src, dst)
	if err == nil && f.afterCopy != nil {
		f.afterCopy()
	}
	return n, err
}

func newTestLogger(t *testing.T) (*plog.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	var console bytes.Buffer
	return plog.New(&console, plog.LevelDebug), &console
}

// createFiles creates each relative path below base with its path as content.
func createFiles(t *testing.T, base string, relPaths ...string) {
	t.Helper()
	for _, rel := range relPaths {
		p := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(rel), 0644); err != nil {
			t.Fatalf("failed to create file %s: %v", rel, err)
		}
	}
}

func createDirs(t *testing.T, base string, relPaths ...string) {
	t.Helper()
	for _, rel := range relPaths {
		if err := os.MkdirAll(filepath.Join(base, rel), 0755); err != nil {
			t.Fatalf("failed to create dir %s: %v", rel, err)
		}
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s not to exist, got err=%v", path, err)
	}
}

func TestCopyTree_UniformFixture(t *testing.T) {
	const files, dirs = 3, 2
	log, _ := newTestLogger(t)
	srcBase := t.TempDir()
	root := t.TempDir()

	sources := []string{filepath.Join(srcBase, "alpha"), filepath.Join(srcBase, "beta")}
	for _, src := range sources {
		createFiles(t, src, "f1.txt", "f2.txt", "f3.txt")
		createDirs(t, src, "d1", "d2")
	}

	copier := New(nil, log)
	var total Result
	for _, src := range sources {
		res, err := copier.CopyTree(context.Background(), src, root, 1)
		if err != nil {
			t.Fatalf("CopyTree() failed: %v", err)
		}
		total.Add(res)
	}

	if want := len(sources) * files; total.FilesCopied != want {
		t.Errorf("expected %d files copied, got %d", want, total.FilesCopied)
	}
	if want := len(sources) * (dirs + 1); total.DirsCreated != want {
		t.Errorf("expected %d dirs created, got %d", want, total.DirsCreated)
	}
	if total.Failures() != 0 {
		t.Errorf("expected no failures, got %+v", total)
	}

	content, err := os.ReadFile(filepath.Join(root, "beta", "f2.txt"))
	if err != nil {
		t.Fatalf("expected copied file: %v", err)
	}
	if string(content) != "f2.txt" {
		t.Errorf("unexpected content %q", content)
	}
	assertExists(t, filepath.Join(root, "alpha", "d2"))
	if total.BytesCopied != int64(len(sources)*len("f1.txt")*files) {
		t.Errorf("unexpected byte count %d", total.BytesCopied)
	}
}

func TestCopyTree_Nested(t *testing.T) {
	log, _ := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "project")
	root := t.TempDir()
	createFiles(t, src, "readme.md", "pkg/a.go", "pkg/sub/b.go", "docs/c.txt")

	res, err := New(nil, log).CopyTree(context.Background(), src, root, 1)
	if err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}
	if res.FilesCopied != 4 || res.DirsCreated != 4 {
		t.Errorf("expected 4 files and 4 dirs, got %+v", res)
	}
	assertExists(t, filepath.Join(root, "project", "pkg", "sub", "b.go"))
}

func TestCopyTree_PreservesMetadata(t *testing.T) {
	log, _ := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "script.sh")

	srcFile := filepath.Join(src, "script.sh")
	mtime := time.Date(2020, 5, 17, 10, 30, 0, 0, time.UTC)
	if err := os.Chtimes(srcFile, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(srcFile, 0750); err != nil {
			t.Fatalf("failed to chmod: %v", err)
		}
	}

	if _, err := New(nil, log).CopyTree(context.Background(), src, root, 1); err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "src", "script.sh"))
	if err != nil {
		t.Fatalf("expected copied file: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("expected mtime %v, got %v", mtime, info.ModTime())
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0750 {
		t.Errorf("expected mode 0750, got %v", info.Mode().Perm())
	}
}

func TestCopyTree_UnreadableSiblingIsIsolated(t *testing.T) {
	log, console := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "a/1.txt", "a/2.txt", "b/1.txt", "b/2.txt", "c/1.txt", "c/2.txt")

	fsys := newFaultyFS()
	fsys.listErr[filepath.Join(src, "b")] = os.ErrPermission

	res, err := New(fsys, log).CopyTree(context.Background(), src, root, 1)
	if err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	if res.FilesCopied != 4 {
		t.Errorf("expected 4 files copied, got %d", res.FilesCopied)
	}
	if res.DirsCreated != 3 {
		t.Errorf("expected 3 dirs created (src, a, c), got %d", res.DirsCreated)
	}
	if res.DirsFailed != 1 {
		t.Errorf("expected 1 failed dir, got %d", res.DirsFailed)
	}
	assertExists(t, filepath.Join(root, "src", "a", "2.txt"))
	assertExists(t, filepath.Join(root, "src", "c", "2.txt"))
	assertNotExists(t, filepath.Join(root, "src", "b"))

	if !strings.Contains(console.String(), "Could not read directory path="+filepath.Join(src, "b")) {
		t.Errorf("expected the unreadable directory to be reported, got:\n%s", console.String())
	}
}

func TestCopyTree_MakeDirFailureSkipsSubtree(t *testing.T) {
	log, console := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "top.txt", "b/1.txt", "b/nested/2.txt", "c/3.txt")

	fsys := newFaultyFS()
	fsys.mkdirErr[filepath.Join(root, "src", "b")] = errors.New("disk full")

	res, err := New(fsys, log).CopyTree(context.Background(), src, root, 1)
	if err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	if res.FilesCopied != 2 || res.DirsCreated != 2 || res.DirsFailed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	for _, dir := range fsys.listed {
		if dir == filepath.Join(src, "b", "nested") {
			t.Error("expected the subtree below a failed directory not to be visited")
		}
	}
	if !strings.Contains(console.String(), "disk full") {
		t.Errorf("expected the creation failure to be reported, got:\n%s", console.String())
	}
}

func TestCopyTree_FileFailureContinues(t *testing.T) {
	log, console := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "1.txt", "2.txt", "3.txt")

	fsys := newFaultyFS()
	fsys.copyErr[filepath.Join(src, "2.txt")] = errors.New("file is locked")

	res, err := New(fsys, log).CopyTree(context.Background(), src, root, 1)
	if err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	if res.FilesCopied != 2 || res.FilesFailed != 1 {
		t.Errorf("expected 2 copied and 1 failed, got %+v", res)
	}
	assertExists(t, filepath.Join(root, "src", "3.txt"))
	assertNotExists(t, filepath.Join(root, "src", "2.txt"))
	if !strings.Contains(console.String(), "    Could not copy file error=\"file is locked\"") {
		t.Errorf("expected an indented copy error, got:\n%s", console.String())
	}
}

func TestCopyTree_SkipsSpecialEntries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}
	log, _ := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "real.txt")
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	res, err := New(nil, log).CopyTree(context.Background(), src, root, 1)
	if err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}
	if res.FilesCopied != 1 || res.EntriesSkipped != 1 {
		t.Errorf("expected 1 copied and 1 skipped, got %+v", res)
	}
	assertNotExists(t, filepath.Join(root, "src", "link.txt"))
}

func TestCopyTree_DotSegmentsStayInsideDestination(t *testing.T) {
	for _, suffix := range []string{"inner/..", "."} {
		t.Run(suffix, func(t *testing.T) {
			log, _ := newTestLogger(t)
			src := filepath.Join(t.TempDir(), "proj")
			root := filepath.Join(t.TempDir(), "root")
			createFiles(t, src, "a.txt")
			createDirs(t, src, "inner")
			if err := os.Mkdir(root, 0755); err != nil {
				t.Fatalf("failed to create root: %v", err)
			}

			res, err := New(nil, log).CopyTree(context.Background(), src+"/"+suffix, root, 1)
			if err != nil {
				t.Fatalf("CopyTree() failed: %v", err)
			}
			if res.FilesCopied != 1 || res.DirsCreated != 2 {
				t.Errorf("expected 1 file and 2 dirs, got %+v", res)
			}
			assertExists(t, filepath.Join(root, "proj", "a.txt"))
			assertNotExists(t, filepath.Join(filepath.Dir(root), "a.txt"))
			assertNotExists(t, filepath.Join(filepath.Dir(root), "inner"))
		})
	}
}

func TestCopyTree_Cancellation(t *testing.T) {
	t.Run("Cancelled before start", func(t *testing.T) {
		log, _ := newTestLogger(t)
		src := filepath.Join(t.TempDir(), "src")
		root := t.TempDir()
		createFiles(t, src, "1.txt")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := New(nil, log).CopyTree(ctx, src, root, 1)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if res != (Result{}) {
			t.Errorf("expected no work to be done, got %+v", res)
		}
		assertNotExists(t, filepath.Join(root, "src"))
	})

	t.Run("Cancelled mid-run", func(t *testing.T) {
		log, _ := newTestLogger(t)
		src := filepath.Join(t.TempDir(), "src")
		root := t.TempDir()
		createFiles(t, src, "1.txt", "2.txt", "sub/3.txt")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fsys := newFaultyFS()
		fsys.afterCopy = cancel

		res, err := New(fsys, log).CopyTree(ctx, src, root, 1)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if res.FilesCopied != 1 || res.DirsCreated != 1 {
			t.Errorf("expected the work before cancellation to be counted, got %+v", res)
		}
		assertNotExists(t, filepath.Join(root, "src", "sub"))
	})
}

func TestCopyTree_LogIndentation(t *testing.T) {
	log, console := newTestLogger(t)
	src := filepath.Join(t.TempDir(), "src")
	root := t.TempDir()
	createFiles(t, src, "top.txt", "sub/deep.txt")

	if _, err := New(nil, log).CopyTree(context.Background(), src, root, 1); err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	var sawTop, sawDeep, sawDescend bool
	for _, line := range strings.Split(console.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "  Copying file from="+filepath.Join(src, "top.txt")):
			sawTop = true
		case strings.HasPrefix(line, "    Copying file from="+filepath.Join(src, "sub", "deep.txt")):
			sawDeep = true
		case strings.HasPrefix(line, "  Copying directory from="+filepath.Join(src, "sub")):
			sawDescend = true
		}
	}
	if !sawTop || !sawDeep || !sawDescend {
		t.Errorf("unexpected indentation (top=%v deep=%v descend=%v):\n%s", sawTop, sawDeep, sawDescend, console.String())
	}
}

func TestOSFS_CopyFileDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	createFiles(t, dir, "src.txt")
	if err := os.WriteFile(dst, []byte("keep me"), 0644); err != nil {
		t.Fatalf("failed to create destination: %v", err)
	}

	if _, err := NewOSFS(0).CopyFile(src, dst); err == nil {
		t.Fatal("expected an error when the destination exists")
	}
	content, _ := os.ReadFile(dst)
	if string(content) != "keep me" {
		t.Errorf("expected destination to be untouched, got %q", content)
	}
}

func TestOSFS_MakeDir(t *testing.T) {
	base := t.TempDir()
	fsys := NewOSFS(0)

	dir := filepath.Join(base, "new")
	if err := fsys.MakeDir(dir); err != nil {
		t.Fatalf("MakeDir() failed: %v", err)
	}
	if err := fsys.MakeDir(dir); err != nil {
		t.Errorf("expected an existing directory to be accepted, got %v", err)
	}

	file := filepath.Join(base, "file")
	createFiles(t, base, "file")
	if err := fsys.MakeDir(file); err == nil {
		t.Error("expected an error when a file is in the way")
	}
	if err := fsys.MakeDir(filepath.Join(base, "missing", "child")); err == nil {
		t.Error("expected an error when the parent is missing")
	}
}

func TestDirName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"C:/Dev/Backup", "Backup"},
		{"C:/Dev/Backup/", "Backup"},
		{"C:/", "C"},
		{"d:", "d"},
		{"/home/user/docs", "docs"},
		{"/", "root"},
		{"docs", "docs"},
		{"C:/Dev/inner/..", "Dev"},
		{"C:/Dev/..", "C"},
		{"/home/user/docs/.", "docs"},
		{"/home/user/docs/inner/../", "docs"},
		{`C:\Dev\Backup`, "Backup"},
	}
	for _, tt := range tests {
		if got := DirName(tt.in); got != tt.want {
			t.Errorf("DirName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResultAdd(t *testing.T) {
	r := Result{FilesCopied: 1, DirsCreated: 2, BytesCopied: 10, FilesFailed: 1}
	r.Add(Result{FilesCopied: 3, DirsCreated: 1, BytesCopied: 5, DirsFailed: 2, EntriesSkipped: 4})

	want := Result{FilesCopied: 4, DirsCreated: 3, BytesCopied: 15, FilesFailed: 1, DirsFailed: 2, EntriesSkipped: 4}
	if r != want {
		t.Errorf("got %+v, want %+v", r, want)
	}
	if r.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", r.Failures())
	}
}
