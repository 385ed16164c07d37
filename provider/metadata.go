package provider

import (
	"os"
	"syscall"
	"time"
)

// UnixFileInfo extends FileInfo with the permission and ownership bits of a
// local file.
type UnixFileInfo interface {
	FileInfo
	UID() uint32
	GID() uint32
	Mode() os.FileMode
}

type localFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
	uid     uint32
	gid     uint32
	mode    os.FileMode
}

func (l *localFileInfo) Name() string       { return l.name }
func (l *localFileInfo) Size() int64        { return l.size }
func (l *localFileInfo) IsDir() bool        { return l.isDir }
func (l *localFileInfo) ModTime() time.Time { return l.modTime }
func (l *localFileInfo) UID() uint32        { return l.uid }
func (l *localFileInfo) GID() uint32        { return l.gid }
func (l *localFileInfo) Mode() os.FileMode  { return l.mode }

// WrapOSFileInfo converts an os.FileInfo into a UnixFileInfo. Ownership is
// left at zero on platforms without syscall.Stat_t.
func WrapOSFileInfo(info os.FileInfo) UnixFileInfo {
	li := &localFileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
		mode:    info.Mode().Perm(),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		li.uid = st.Uid
		li.gid = st.Gid
	}
	return li
}

// MetadataPolicy selects which source attributes are carried over to a
// written file.
type MetadataPolicy struct {
	Mode    bool
	ModTime bool
	// Owner requires privileges; failures are ignored.
	Owner bool
}

// DefaultMetadataPolicy keeps permissions and modification time.
var DefaultMetadataPolicy = MetadataPolicy{Mode: true, ModTime: true}

// NoMetadata writes files with default permissions and the current time.
var NoMetadata = MetadataPolicy{}

// Apply copies the selected attributes of info onto path.
func (p MetadataPolicy) Apply(path string, info FileInfo) error {
	if info == nil {
		return nil
	}
	if ui, ok := info.(UnixFileInfo); ok {
		if p.Mode && ui.Mode() != 0 {
			if err := os.Chmod(path, ui.Mode()); err != nil {
				return err
			}
		}
		if p.Owner {
			_ = os.Chown(path, int(ui.UID()), int(ui.GID()))
		}
	}
	if p.ModTime && !info.ModTime().IsZero() {
		return os.Chtimes(path, time.Now(), info.ModTime())
	}
	return nil
}
