package hotplug

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotMounted is returned when a device node never shows up in the mount
// table within the retry budget.
var ErrNotMounted = errors.New("device not mounted")

// MountEntry is one line of a mount table.
type MountEntry struct {
	Device     string
	MountPoint string
	FSType     string
	Options    string
}

// ParseMounts reads /proc/mounts-format lines: device, mount point, fs type
// and options separated by spaces, with octal escapes (\040 for a space) in
// the first two fields. Short lines are skipped.
func ParseMounts(r io.Reader) ([]MountEntry, error) {
	var out []MountEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 2 || strings.HasPrefix(f[0], "#") {
			continue
		}
		e := MountEntry{
			Device:     unescapeOctal(f[0]),
			MountPoint: unescapeOctal(f[1]),
		}
		if len(f) > 2 {
			e.FSType = f[2]
		}
		if len(f) > 3 {
			e.Options = f[3]
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan mount table")
	}
	return out, nil
}

func unescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

// MountTable reads a mount table file on every query; the file is expected to
// be a live view such as /proc/mounts.
type MountTable struct {
	path string
}

func NewMountTable(path string) *MountTable {
	return &MountTable{path: path}
}

func (t *MountTable) Path() string { return t.path }

// Entries parses the current contents of the table.
func (t *MountTable) Entries() ([]MountEntry, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, errors.Wrap(err, "open mount table")
	}
	defer f.Close()
	return ParseMounts(f)
}

// Lookup returns the mount point of dev, if it is mounted.
func (t *MountTable) Lookup(dev string) (string, bool, error) {
	entries, err := t.Entries()
	if err != nil {
		return "", false, err
	}
	dev = filepath.Clean(dev)
	for _, e := range entries {
		if filepath.Clean(e.Device) == dev {
			return e.MountPoint, true, nil
		}
	}
	return "", false, nil
}

// MountPoints returns the set of currently mounted mount points, cleaned.
func (t *MountTable) MountPoints() (map[string]struct{}, error) {
	entries, err := t.Entries()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[filepath.Clean(e.MountPoint)] = struct{}{}
	}
	return set, nil
}

// ResolveMount polls the table until dev appears, trying attempts times with a
// fixed delay in between. A freshly created device node is usually mounted a
// moment later by the system's automounter.
func (t *MountTable) ResolveMount(ctx context.Context, dev string, attempts int, delay time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		mp, ok, err := t.Lookup(dev)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return mp, nil
		}
	}
	if lastErr != nil {
		return "", errors.Wrapf(ErrNotMounted, "%s: %v", dev, lastErr)
	}
	return "", errors.Wrapf(ErrNotMounted, "%s after %d attempts", dev, attempts)
}
