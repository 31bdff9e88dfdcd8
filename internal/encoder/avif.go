package encoder

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/imgcrush/internal/config"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// AVIFEncoder encodes images to AVIF by shelling out to avifenc.
// Install: brew install libavif / apt install libavif-bin
type AVIFEncoder struct {
	once        sync.Once
	available   bool
	avifencPath string

	// lookPath is exec.LookPath unless a test overrides it.
	lookPath func(string) (string, error)
}

func (e *AVIFEncoder) Format() config.Format { return config.FormatAVIF }

func (e *AVIFEncoder) Available() bool {
	e.once.Do(func() {
		look := e.lookPath
		if look == nil {
			look = exec.LookPath
		}
		path, err := look("avifenc")
		if err == nil {
			e.available = true
			e.avifencPath = path
		}
	})
	return e.available
}

// avifQuantizer maps quality 0-100 onto avifenc's 63-0 quantizer scale
// (lower is better).
func avifQuantizer(quality int) int {
	quality = max(0, min(quality, 100))
	return 63 - quality*63/100
}

func (e *AVIFEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("%w: avifenc not found in PATH", ErrUnsupported)
	}
	q := strconv.Itoa(avifQuantizer(quality))

	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("imgcrush_avif_src_%d_*.png", id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	dstFile, err := os.CreateTemp("", fmt.Sprintf("imgcrush_avif_dst_%d_*.avif", id))
	if err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	if err := png.Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp png: %w", err)
	}

	// One job keeps the output reproducible.
	cmd := exec.Command(e.avifencPath,
		"--min", q,
		"--max", q,
		"--speed", "6",
		"--jobs", "1",
		srcPath,
		dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("avifenc: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}
