package server

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"mirrorstore/internal/fsops"
	"mirrorstore/internal/proto"
)

// InfoTimeFormat is the layout of the "Last modified" line.
const InfoTimeFormat = "2006-01-02 15:04:05"

// opINFO reports metadata of the first device copy that can be stat'ed.
func (s *Server) opINFO(c io.Writer, rel string) result {
	var lastErr error = os.ErrNotExist
	for i := 0; i < s.reg.Len(); i++ {
		fi, err := os.Stat(s.reg.Path(i, rel))
		if err != nil {
			lastErr = err
			continue
		}
		body := formatInfo(rel, fi)
		out := make([]byte, 0, 1+len(body))
		out = append(out, proto.StatusSuccess)
		out = append(out, body...)
		if _, err := c.Write(out); err != nil {
			return failed(err.Error())
		}
		return succeeded()
	}
	msg := "ERROR: " + fsops.Errno(lastErr)
	_ = proto.WriteFailure(c, msg)
	return failed(msg)
}

func formatInfo(rel string, fi fs.FileInfo) string {
	owner, group := "?", "?"
	if st, isStat := fi.Sys().(*syscall.Stat_t); isStat {
		owner = userName(st.Uid)
		group = groupName(st.Gid)
	}
	return fmt.Sprintf("File: %s\nSize: %d bytes\nPermissions: %s\nOwner: %s\nGroup: %s\nLast modified: %s\n",
		rel,
		fi.Size(),
		permString(fi.Mode()),
		owner,
		group,
		fi.ModTime().Local().Format(InfoTimeFormat),
	)
}

// permString renders the ls -l style ten-character mode: the directory flag
// then owner, group and other rwx triplets.
func permString(m fs.FileMode) string {
	b := []byte("----------")
	if m.IsDir() {
		b[0] = 'd'
	}
	const rwx = "rwx"
	perm := m.Perm()
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			b[1+i] = rwx[i%3]
		}
	}
	return string(b)
}

func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}
