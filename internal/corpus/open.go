package corpus

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultMaxEntrySize bounds a single decompressed archive member.
const DefaultMaxEntrySize = 512 << 20

var zipMagic = []byte("PK\x03\x04")

// Sample is one pickle stream taken from a model file.
type Sample struct {
	// Path is the file the sample came from.
	Path string
	// Entry is the archive member name, empty for plain files.
	Entry string
	// Data is the raw stream.
	Data []byte
	// Stacked is set for plain files, which may hold consecutive pickles.
	Stacked bool
}

// Name identifies the sample in logs and reports.
func (s Sample) Name() string {
	if s.Entry == "" {
		return s.Path
	}
	return s.Path + "!" + s.Entry
}

type openConfig struct {
	maxEntrySize int64
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// WithMaxEntrySize bounds each decompressed archive member.
func WithMaxEntrySize(n int64) OpenOption {
	return func(c *openConfig) {
		c.maxEntrySize = n
	}
}

// Open reads the samples in a model file.
func Open(filename string, opts ...OpenOption) ([]Sample, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return OpenBytes(filename, data, opts...)
}

// OpenBytes is Open over an in-memory file.
func OpenBytes(name string, data []byte, opts ...OpenOption) ([]Sample, error) {
	cfg := openConfig{maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return []Sample{{Path: name, Data: data, Stacked: true}}, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: open archive: %w", name, err)
	}
	var samples []Sample
	for _, f := range zr.File {
		if ok, _ := path.Match("*/data.pkl", f.Name); !ok {
			continue
		}
		if f.UncompressedSize64 > uint64(cfg.maxEntrySize) {
			return nil, fmt.Errorf("%s: %s: %d bytes exceeds limit %d", name, f.Name, f.UncompressedSize64, cfg.maxEntrySize)
		}
		body, err := readEntry(f, cfg.maxEntrySize)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", name, f.Name, err)
		}
		samples = append(samples, Sample{Path: name, Entry: f.Name, Data: body})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: archive has no */data.pkl member", name)
	}
	return samples, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size can lie; read one byte past the limit to notice.
	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("decompressed size exceeds limit %d", limit)
	}
	return body, nil
}

// modelNames are file names always treated as model files.
var modelNames = []string{"pytorch_model.bin"}

// modelExts are extensions treated as model files.
var modelExts = []string{".pt", ".pth", ".pkl", ".bin", ".pickle"}

// IsModelFile reports whether a file name looks like a pickled model.
func IsModelFile(name string) bool {
	base := filepath.Base(name)
	if slices.Contains(modelNames, base) {
		return true
	}
	return slices.Contains(modelExts, strings.ToLower(filepath.Ext(base)))
}

// Discover walks root and returns every model file in lexical order.
func Discover(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsModelFile(p) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}
