package catalog

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/fedragon/go-neardup/internal/models"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	BMP  = ".bmp"
	CR2  = ".cr2"
	GIF  = ".gif"
	HEIC = ".heic"
	JPEG = ".jpeg"
	JPG  = ".jpg"
	ORF  = ".orf"
	PNG  = ".png"
	TIF  = ".tif"
	TIFF = ".tiff"
	WEBP = ".webp"

	AVI  = ".avi"
	M4V  = ".m4v"
	MKV  = ".mkv"
	MOV  = ".mov"
	MP4  = ".mp4"
	WEBM = ".webm"

	AAC  = ".aac"
	FLAC = ".flac"
	M4A  = ".m4a"
	MP3  = ".mp3"
	OGG  = ".ogg"
	WAV  = ".wav"
)

var kindByExt = map[string]models.MediaKind{
	BMP:  models.KindImage,
	CR2:  models.KindImage,
	GIF:  models.KindImage,
	HEIC: models.KindImage,
	JPEG: models.KindImage,
	JPG:  models.KindImage,
	ORF:  models.KindImage,
	PNG:  models.KindImage,
	TIF:  models.KindImage,
	TIFF: models.KindImage,
	WEBP: models.KindImage,

	AVI:  models.KindVideo,
	M4V:  models.KindVideo,
	MKV:  models.KindVideo,
	MOV:  models.KindVideo,
	MP4:  models.KindVideo,
	WEBM: models.KindVideo,

	AAC:  models.KindAudio,
	FLAC: models.KindAudio,
	M4A:  models.KindAudio,
	MP3:  models.KindAudio,
	OGG:  models.KindAudio,
	WAV:  models.KindAudio,
}

const defaultProbeCacheSize = 4096

// FSOptions tune an FS catalog. Zero values fall back to defaults.
type FSOptions struct {
	// FFprobeBinary and FFmpegBinary override the executables used to probe
	// containers and extract video frames. Empty means $PATH lookup.
	FFprobeBinary string
	FFmpegBinary  string

	// ProbeCacheSize caps how many ffprobe results are kept in memory.
	ProbeCacheSize int
}

// FS is a Catalog backed by a directory tree on the local filesystem. Asset
// IDs are absolute file paths, so they stay stable across scans as long as
// files do not move.
type FS struct {
	root    string
	ffprobe string
	ffmpeg  string
	logger  *zap.Logger
	probes  *lru.Cache[string, probeEntry]
}

var _ Catalog = (*FS)(nil)

type probeEntry struct {
	result  ffprobeResult
	modTime time.Time
}

// NewFS builds a catalog rooted at the given directory.
func NewFS(root string, opts FSOptions, logger *zap.Logger) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%v is not a directory", abs)
	}

	size := opts.ProbeCacheSize
	if size <= 0 {
		size = defaultProbeCacheSize
	}
	probes, err := lru.New[string, probeEntry](size)
	if err != nil {
		return nil, err
	}

	return &FS{
		root:    abs,
		ffprobe: resolveBinary(opts.FFprobeBinary, "ffprobe"),
		ffmpeg:  resolveBinary(opts.FFmpegBinary, "ffmpeg"),
		logger:  logger,
		probes:  probes,
	}, nil
}

func resolveBinary(configured, fallback string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	return fallback
}

// Assets walks the root directory and describes every media file found,
// ordered by creation time ascending, ties broken by ID.
func (f *FS) Assets(ctx context.Context, filter Filter) ([]models.AssetRecord, error) {
	var records []models.AssetRecord

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != f.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}

		kind, ok := kindByExt[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		// Video and audio creation times are mtime, so the watermark filter
		// runs before the container is probed. EXIF may move an image's
		// CreatedAt, so images are described first.
		if kind != models.KindImage && !filter.CreatedAfter.IsZero() && !info.ModTime().After(filter.CreatedAfter) {
			return nil
		}

		record := f.describe(ctx, path, kind, info)
		if !filter.CreatedAfter.IsZero() && !record.CreatedAt.After(filter.CreatedAfter) {
			return nil
		}

		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

// describe builds an asset record from whatever metadata the file yields.
// Metadata failures degrade to filesystem facts rather than aborting a walk.
func (f *FS) describe(ctx context.Context, path string, kind models.MediaKind, info fs.FileInfo) models.AssetRecord {
	record := models.AssetRecord{
		ID:        filepath.Clean(path),
		Kind:      kind,
		ByteSize:  info.Size(),
		CreatedAt: info.ModTime(),
	}

	switch kind {
	case models.KindImage:
		if width, height, err := imageDimensions(path); err == nil {
			record.Width, record.Height = width, height
		}
		if meta, err := readExif(path); err == nil {
			if !meta.CreatedAt.IsZero() {
				record.CreatedAt = meta.CreatedAt
			}
			record.Location = meta.Location
			record.DeviceMake = meta.Make
			record.DeviceModel = meta.Model
		}
	case models.KindVideo, models.KindAudio:
		probe, err := f.probeFor(ctx, path, info.ModTime())
		if err != nil {
			f.logger.Warn("Probing media failed", zap.String("path", path), zap.Error(err))
			break
		}
		record.Duration = probe.durationSeconds()
		if v := probe.videoStream(); v != nil {
			record.Width, record.Height = v.Width, v.Height
		}
	}

	return record
}

func imageDimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// probeFor runs ffprobe at most once per path per modification time.
func (f *FS) probeFor(ctx context.Context, path string, modTime time.Time) (ffprobeResult, error) {
	if entry, ok := f.probes.Get(path); ok && entry.modTime.Equal(modTime) {
		return entry.result, nil
	}

	result, err := runProbe(ctx, f.ffprobe, path)
	if err != nil {
		return ffprobeResult{}, err
	}

	f.probes.Add(path, probeEntry{result: result, modTime: modTime})
	return result, nil
}

// AssetsExist stats each path. Anything but a clean hit or a clean miss
// aborts, so callers never prune on the back of IO errors.
func (f *FS) AssetsExist(ctx context.Context, ids []string) (map[string]bool, error) {
	exists := make(map[string]bool, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err := os.Stat(id)
		switch {
		case err == nil:
			exists[id] = true
		case errors.Is(err, fs.ErrNotExist):
			exists[id] = false
		default:
			return nil, fmt.Errorf("checking %v: %w", id, err)
		}
	}
	return exists, nil
}

// ContentHash hashes the asset's raw bytes with BLAKE3.
func (f *FS) ContentHash(ctx context.Context, id string) (string, error) {
	file, err := os.Open(id)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hashing %v: %w", id, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// OpenImage decodes an image asset at full resolution, honouring the EXIF
// orientation tag so rotated copies hash consistently.
func (f *FS) OpenImage(ctx context.Context, id string) (image.Image, error) {
	img, err := imaging.Open(id, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding %v: %w", id, err)
	}
	return img, nil
}

// FrameAt extracts a frame at the given relative position of the video's
// duration.
func (f *FS) FrameAt(ctx context.Context, id string, position float64) (image.Image, error) {
	if position <= 0 || position >= 1 {
		return nil, fmt.Errorf("frame position %v out of range", position)
	}

	info, err := os.Stat(id)
	if err != nil {
		return nil, err
	}

	probe, err := f.probeFor(ctx, id, info.ModTime())
	if err != nil {
		return nil, err
	}

	return extractFrame(ctx, f.ffmpeg, id, probe.durationSeconds()*position)
}
