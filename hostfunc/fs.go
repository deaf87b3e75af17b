package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	DefaultMaxFileSize   = 10 * 1024 * 1024
	DefaultMaxWriteSize  = 10 * 1024 * 1024
	DefaultMaxPathLength = 4096
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows read and write operations on existing files.
	MountReadWrite
	// MountReadWriteCreate additionally allows creating files and directories.
	MountReadWriteCreate
)

// Mount maps a virtual path seen by sandboxed code to a host path.
type Mount struct {
	VirtualPath string
	HostPath    string
	Mode        MountMode
}

// FSOption configures limits on filesystem operations.
type FSOption func(*FS)

// WithMaxFileSize caps the size of files returned by Read.
func WithMaxFileSize(size int64) FSOption {
	return func(f *FS) {
		if size > 0 {
			f.maxFileSize = size
		}
	}
}

// WithMaxWriteSize caps the content size accepted by Write.
func WithMaxWriteSize(size int64) FSOption {
	return func(f *FS) {
		if size > 0 {
			f.maxWriteSize = size
		}
	}
}

// WithMaxPathLength caps the length of virtual paths.
func WithMaxPathLength(length int) FSOption {
	return func(f *FS) {
		if length > 0 {
			f.maxPathLength = length
		}
	}
}

// FS provides filesystem operations restricted to explicit mount points.
type FS struct {
	mounts        []Mount
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
	mu            sync.RWMutex
}

// NewFS creates a filesystem handler for the given mounts. Mounts with an
// unresolvable host path are dropped.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		vp := "/" + strings.Trim(m.VirtualPath, "/")
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: vp,
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}

	f := &FS{
		mounts:        normalized,
		maxFileSize:   DefaultMaxFileSize,
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// resolve maps a virtual path to a host path, checking mount permissions
// and rejecting escapes via "..".
func (f *FS) resolve(virtualPath string, needWrite bool) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(virtualPath) > f.maxPathLength {
		return "", errors.New("path too long")
	}

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))

	for _, m := range f.mounts {
		if vp == m.VirtualPath || strings.HasPrefix(vp, m.VirtualPath+"/") {
			if needWrite && m.Mode == MountReadOnly {
				return "", errors.New("permission denied: read-only mount")
			}

			relPath := strings.TrimPrefix(vp, m.VirtualPath)
			if relPath == "" {
				relPath = "/"
			}

			hostPath := filepath.Join(m.HostPath, relPath)

			absHostPath, err := filepath.Abs(hostPath)
			if err != nil {
				return "", errors.New("invalid path")
			}

			if absHostPath != m.HostPath && !strings.HasPrefix(absHostPath, m.HostPath+string(filepath.Separator)) {
				return "", errors.New("permission denied: path escape attempt")
			}

			return absHostPath, nil
		}
	}

	return "", errors.New("permission denied: path not in any mount")
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, errors.New("read error: " + err.Error())
	}
	if info.Size() > f.maxFileSize {
		return nil, fmt.Errorf("file exceeds max size %d", f.maxFileSize)
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, errors.New("read error: " + err.Error())
	}

	return string(data), nil
}

// Write writes content to a file. Creating a new file requires a
// MountReadWriteCreate mount.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, errors.New("content required")
	}

	if int64(len(content)) > f.maxWriteSize {
		return nil, fmt.Errorf("content exceeds max size %d", f.maxWriteSize)
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(hostPath); os.IsNotExist(statErr) {
		mount := f.findMount(path)
		if mount == nil || mount.Mode != MountReadWriteCreate {
			return nil, errors.New("permission denied: cannot create new files")
		}
	}

	if err := os.WriteFile(hostPath, []byte(content), 0644); err != nil {
		return nil, errors.New("write error: " + err.Error())
	}

	return "ok", nil
}

// List returns the entries of a directory.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("directory not found: " + path)
		}
		return nil, errors.New("list error: " + err.Error())
	}

	result := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		info, _ := entry.Info()
		item := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info != nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}

	return result, nil
}

// Exists reports whether a path exists. Paths outside any mount report
// false rather than erroring.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return false, nil
	}

	_, err = os.Stat(hostPath)
	return err == nil, nil
}

// Mkdir creates a directory, requiring a MountReadWriteCreate mount.
func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}

	mount := f.findMount(path)
	if mount == nil || mount.Mode != MountReadWriteCreate {
		return nil, errors.New("permission denied: cannot create directories")
	}

	if err := os.MkdirAll(hostPath, 0755); err != nil {
		return nil, errors.New("mkdir error: " + err.Error())
	}

	return "ok", nil
}

// Remove deletes a file or empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, true)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(hostPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		if pathErr, ok := err.(*fs.PathError); ok && strings.Contains(pathErr.Error(), "directory not empty") {
			return nil, errors.New("directory not empty: " + path)
		}
		return nil, errors.New("remove error: " + err.Error())
	}

	return "ok", nil
}

// Stat returns information about a file or directory.
func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	path, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}

	hostPath, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, errors.New("stat error: " + err.Error())
	}

	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}

// findMount returns the mount covering a virtual path.
func (f *FS) findMount(virtualPath string) *Mount {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))

	for i := range f.mounts {
		m := &f.mounts[i]
		if vp == m.VirtualPath || strings.HasPrefix(vp, m.VirtualPath+"/") {
			return m
		}
	}
	return nil
}
