package recording

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/signal.recorder/internal/fsutil"
)

// FileInfo describes a recorded segment on disk.
type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Format   Format    `json:"format,omitempty"`
}

// SegmentInfo returns size and modification time of the file at path. The
// format is inferred from the extension when it is one the recorder writes.
func SegmentInfo(fsys fsutil.FileSystem, path string) (FileInfo, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("stat %s: is a directory", path)
	}
	return FileInfo{
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime(),
		Format:   formatForExtension(filepath.Ext(path)),
	}, nil
}

func formatForExtension(ext string) Format {
	for _, f := range []Format{FormatCSV, FormatJSON, FormatBinary, FormatParquet} {
		if strings.EqualFold(ext, f.Extension()) {
			return f
		}
	}
	return ""
}
