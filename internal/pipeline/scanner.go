package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnyUserName/imgcrush/internal/config"
)

// Source is a candidate input discovered on disk. The extension only
// selects candidates; the real format is sniffed when the file is read.
type Source struct {
	// AbsPath is the path to the file on disk.
	AbsPath string
	// RelPath is the slash-separated path relative to the input directory.
	RelPath string
	// Key is RelPath without its extension.
	Key  string
	Size int64
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".avif": true,
}

// ScanImages walks inputDir, skipping hidden directories, and returns image
// sources sorted by key.
func ScanImages(inputDir string) ([]Source, error) {
	var sources []Source

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != inputDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !imageExtensions[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		sources = append(sources, Source{
			AbsPath: path,
			RelPath: relPath,
			Key:     relPath[:len(relPath)-len(ext)],
			Size:    info.Size(),
		})
		return nil
	})

	sort.Slice(sources, func(i, j int) bool { return sources[i].Key < sources[j].Key })
	return sources, err
}

// extensionFormat guesses a format from a file name, for logging only.
func extensionFormat(name string) config.Format {
	f, err := config.ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
	if err != nil {
		return ""
	}
	return f
}
