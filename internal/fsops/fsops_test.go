package fsops

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"mirrorstore/internal/flock"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// holdWriteLock keeps an exclusive lock on p through a second descriptor.
func holdWriteLock(t *testing.T, p string) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("descriptor-level lock conflicts need OFD locks")
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	l, err := flock.WriteLock(f)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = l.Release()
		_ = f.Close()
	})
}

func TestCopyFileTruncatesDestination(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src.txt": "short",
		"dst.txt": "a much longer previous content",
	})

	g.Expect(CopyFile(filepath.Join(dir, "src.txt"), filepath.Join(dir, "dst.txt"))).To(Succeed())
	g.Expect(readFile(t, filepath.Join(dir, "dst.txt"))).To(Equal("short"))
}

func TestCopyFileLargerThanChunk(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	big := make([]byte, ChunkSize*3+17)
	for i := range big {
		big[i] = byte(i % 251)
	}
	src := filepath.Join(dir, "big.bin")
	g.Expect(os.WriteFile(src, big, 0o644)).To(Succeed())

	dst := filepath.Join(dir, "copy.bin")
	g.Expect(CopyFile(src, dst)).To(Succeed())
	got, err := os.ReadFile(dst)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal(big))
}

func TestCopyFileMissingSource(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	g.Expect(err).To(MatchError(os.ErrNotExist))
	g.Expect(filepath.Join(dir, "dst")).NotTo(BeAnExistingFile())
}

func TestCopyDirRecursiveSkipsSymlinks(t *testing.T) {
	g := NewWithT(t)
	src := filepath.Join(t.TempDir(), "src")
	writeTree(t, src, map[string]string{
		"a.txt":       "A",
		"sub/b.txt":   "B",
		"sub/x/c.txt": "C",
	})
	g.Expect(os.Symlink(filepath.Join(src, "a.txt"), filepath.Join(src, "link"))).To(Succeed())

	dst := filepath.Join(t.TempDir(), "dst")
	g.Expect(CopyDir(src, dst)).To(Succeed())

	g.Expect(readFile(t, filepath.Join(dst, "a.txt"))).To(Equal("A"))
	g.Expect(readFile(t, filepath.Join(dst, "sub", "b.txt"))).To(Equal("B"))
	g.Expect(readFile(t, filepath.Join(dst, "sub", "x", "c.txt"))).To(Equal("C"))
	_, err := os.Lstat(filepath.Join(dst, "link"))
	g.Expect(os.IsNotExist(err)).To(BeTrue())
}

func TestCopyDirContinuesPastFailures(t *testing.T) {
	g := NewWithT(t)
	src := filepath.Join(t.TempDir(), "src")
	writeTree(t, src, map[string]string{
		"locked.txt": "L",
		"ok.txt":     "O",
	})
	holdWriteLock(t, filepath.Join(src, "locked.txt"))

	dst := filepath.Join(t.TempDir(), "dst")
	err := CopyDir(src, dst)
	g.Expect(err).To(MatchError(flock.ErrWouldBlock))
	g.Expect(readFile(t, filepath.Join(dst, "ok.txt"))).To(Equal("O"))
}

func TestCopyDirToleratesExistingDestination(t *testing.T) {
	g := NewWithT(t)
	src := filepath.Join(t.TempDir(), "src")
	writeTree(t, src, map[string]string{"a.txt": "new"})
	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"a.txt": "old", "keep.txt": "k"})

	g.Expect(CopyDir(src, dst)).To(Succeed())
	g.Expect(readFile(t, filepath.Join(dst, "a.txt"))).To(Equal("new"))
	g.Expect(readFile(t, filepath.Join(dst, "keep.txt"))).To(Equal("k"))
}

func TestRemoveFile(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"f.txt": "x"})

	g.Expect(RemoveFile(filepath.Join(dir, "f.txt"))).To(Succeed())
	g.Expect(filepath.Join(dir, "f.txt")).NotTo(BeAnExistingFile())
	g.Expect(RemoveFile(filepath.Join(dir, "f.txt"))).To(MatchError(os.ErrNotExist))
}

func TestRemoveFileFailsWhenLocked(t *testing.T) {
	g := NewWithT(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	writeTree(t, dir, map[string]string{"f.txt": "x"})
	holdWriteLock(t, p)

	g.Expect(RemoveFile(p)).To(MatchError(flock.ErrWouldBlock))
	g.Expect(p).To(BeAnExistingFile())
}

func TestDeleteDir(t *testing.T) {
	g := NewWithT(t)
	root := filepath.Join(t.TempDir(), "root")
	writeTree(t, root, map[string]string{
		"a.txt":     "A",
		"sub/b.txt": "B",
	})
	g.Expect(os.Mkdir(filepath.Join(root, "empty"), 0o755)).To(Succeed())
	g.Expect(os.Symlink("/nonexistent", filepath.Join(root, "dangling"))).To(Succeed())

	g.Expect(DeleteDir(root)).To(Succeed())
	g.Expect(root).NotTo(BeADirectory())
}

func TestDeleteDirKeepsGoingButReportsFailure(t *testing.T) {
	g := NewWithT(t)
	root := filepath.Join(t.TempDir(), "root")
	writeTree(t, root, map[string]string{
		"locked.txt": "L",
		"other.txt":  "O",
		"sub/c.txt":  "C",
	})
	holdWriteLock(t, filepath.Join(root, "locked.txt"))

	g.Expect(DeleteDir(root)).To(HaveOccurred())
	g.Expect(filepath.Join(root, "locked.txt")).To(BeAnExistingFile())
	g.Expect(filepath.Join(root, "other.txt")).NotTo(BeAnExistingFile())
	g.Expect(filepath.Join(root, "sub")).NotTo(BeADirectory())
	g.Expect(root).To(BeADirectory())
}

func TestDeleteDirMissing(t *testing.T) {
	g := NewWithT(t)
	err := DeleteDir(filepath.Join(t.TempDir(), "missing"))
	g.Expect(Errno(err)).To(Equal("no such file or directory"))
}

func TestErrno(t *testing.T) {
	g := NewWithT(t)
	_, err := os.Open("/definitely/not/here")
	g.Expect(Errno(errors.Wrap(err, "open"))).To(Equal("no such file or directory"))
	g.Expect(Errno(errors.New("plain"))).To(Equal("plain"))
	g.Expect(Errno(nil)).To(BeEmpty())
	g.Expect(Errno(errors.Wrap(flock.ErrWouldBlock, "write lock x"))).To(Equal("resource temporarily unavailable"))
}

func TestDiskUsage(t *testing.T) {
	g := NewWithT(t)
	u, err := DiskUsage(t.TempDir())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u.Total).To(BeNumerically(">=", u.Free))
	g.Expect(u.Used()).To(Equal(u.Total - u.Free))

	_, err = DiskUsage("/definitely/not/here")
	g.Expect(Errno(err)).To(Equal("no such file or directory"))
}
