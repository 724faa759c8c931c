package catalog

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fedragon/go-neardup/internal/models"
)

func newTestFS(t *testing.T, root string, opts FSOptions) *FS {
	t.Helper()

	fsys, err := NewFS(root, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fsys
}

func writePNG(t *testing.T, path string, width, height int, modTime time.Time) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7 % 256), G: uint8(y * 13 % 256), B: 128, A: 255})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %v: %v", path, err)
	}
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encoding %v: %v", path, err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("closing %v: %v", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("setting times on %v: %v", path, err)
	}
}

func TestFSAssetsOrderedByCreation(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	writePNG(t, filepath.Join(root, "c.png"), 8, 8, base.Add(2*time.Hour))
	writePNG(t, filepath.Join(root, "b.png"), 8, 8, base)
	writePNG(t, filepath.Join(root, "a.png"), 8, 8, base)

	fsys := newTestFS(t, root, FSOptions{})
	records, err := fsys.Assets(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 3, len(records))
	}

	var names []string
	for _, r := range records {
		names = append(names, filepath.Base(r.ID))
	}
	want := []string{"a.png", "b.png", "c.png"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("order at %v\n\tExpected %v but got %v instead", i, want[i], names[i])
		}
	}

	for _, r := range records {
		if !filepath.IsAbs(r.ID) {
			t.Errorf("ID %v\n\tExpected an absolute path", r.ID)
		}
	}
}

func TestFSAssetsFiltersByCreatedAfter(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	writePNG(t, filepath.Join(root, "old.png"), 8, 8, base.Add(-time.Hour))
	writePNG(t, filepath.Join(root, "boundary.png"), 8, 8, base)
	writePNG(t, filepath.Join(root, "new.png"), 8, 8, base.Add(time.Hour))

	fsys := newTestFS(t, root, FSOptions{})
	records, err := fsys.Assets(context.Background(), Filter{CreatedAfter: base})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 1, len(records))
	}
	if got := filepath.Base(records[0].ID); got != "new.png" {
		t.Errorf("record\n\tExpected %v but got %v instead", "new.png", got)
	}
}

func TestFSAssetsSkipsUnknownAndHidden(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	writePNG(t, filepath.Join(root, "keep.png"), 8, 8, mtime)
	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("not media"), 0o644); err != nil {
		t.Fatalf("writing note.txt: %v", err)
	}
	hidden := filepath.Join(root, ".cache")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatalf("creating %v: %v", hidden, err)
	}
	writePNG(t, filepath.Join(hidden, "thumb.png"), 8, 8, mtime)

	fsys := newTestFS(t, root, FSOptions{})
	records, err := fsys.Assets(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 1, len(records))
	}
	if got := filepath.Base(records[0].ID); got != "keep.png" {
		t.Errorf("record\n\tExpected %v but got %v instead", "keep.png", got)
	}
}

func TestFSAssetsDescribesImages(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	writePNG(t, filepath.Join(root, "photo.png"), 32, 20, mtime)

	fsys := newTestFS(t, root, FSOptions{})
	records, err := fsys.Assets(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 1, len(records))
	}

	r := records[0]
	if r.Kind != models.KindImage {
		t.Errorf("kind\n\tExpected %v but got %v instead", models.KindImage, r.Kind)
	}
	if r.Width != 32 || r.Height != 20 {
		t.Errorf("dimensions\n\tExpected %vx%v but got %vx%v instead", 32, 20, r.Width, r.Height)
	}
	if r.ByteSize <= 0 {
		t.Errorf("byte size\n\tExpected a positive value but got %v instead", r.ByteSize)
	}
	if !r.CreatedAt.Equal(mtime) {
		t.Errorf("created at\n\tExpected %v but got %v instead", mtime, r.CreatedAt)
	}
}

// fakeProbe writes a stand-in ffprobe that emits canned JSON and counts its
// invocations, so probe behavior is testable without real media files.
func fakeProbe(t *testing.T, dir, payload string) (binary, countFile string) {
	t.Helper()

	countFile = filepath.Join(dir, "probe-count")
	binary = filepath.Join(dir, "fake-ffprobe")
	script := fmt.Sprintf("#!/bin/sh\necho x >> %s\ncat <<'EOF'\n%s\nEOF\n", countFile, payload)
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake ffprobe: %v", err)
	}
	return binary, countFile
}

func probeCount(t *testing.T, countFile string) int {
	t.Helper()

	data, err := os.ReadFile(countFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("reading %v: %v", countFile, err)
	}
	return strings.Count(string(data), "x")
}

func TestFSAssetsDescribesVideos(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	path := filepath.Join(root, "clip.mp4")
	if err := os.WriteFile(path, []byte("not a real container"), 0o644); err != nil {
		t.Fatalf("writing %v: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting times on %v: %v", path, err)
	}

	payload := `{"streams":[{"index":0,"codec_type":"video","width":640,"height":360}],"format":{"duration":"12.500000"}}`
	binary, countFile := fakeProbe(t, t.TempDir(), payload)

	fsys := newTestFS(t, root, FSOptions{FFprobeBinary: binary})

	records, err := fsys.Assets(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 1, len(records))
	}

	r := records[0]
	if r.Kind != models.KindVideo {
		t.Errorf("kind\n\tExpected %v but got %v instead", models.KindVideo, r.Kind)
	}
	if r.Duration != 12.5 {
		t.Errorf("duration\n\tExpected %v but got %v instead", 12.5, r.Duration)
	}
	if r.Width != 640 || r.Height != 360 {
		t.Errorf("dimensions\n\tExpected %vx%v but got %vx%v instead", 640, 360, r.Width, r.Height)
	}

	// A second enumeration should hit the probe cache.
	if _, err := fsys.Assets(context.Background(), Filter{}); err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if got := probeCount(t, countFile); got != 1 {
		t.Errorf("probe invocations\n\tExpected %v but got %v instead", 1, got)
	}
}

func TestFSAssetsSkipsProbeForFilteredVideos(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	path := filepath.Join(root, "old.mp4")
	if err := os.WriteFile(path, []byte("not a real container"), 0o644); err != nil {
		t.Fatalf("writing %v: %v", path, err)
	}
	mtime := base.Add(-time.Hour)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting times on %v: %v", path, err)
	}

	payload := `{"streams":[],"format":{"duration":"9.000000"}}`
	binary, countFile := fakeProbe(t, t.TempDir(), payload)
	fsys := newTestFS(t, root, FSOptions{FFprobeBinary: binary})

	records, err := fsys.Assets(context.Background(), Filter{CreatedAfter: base})
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}

	if len(records) != 0 {
		t.Fatalf("records\n\tExpected %v but got %v instead", 0, len(records))
	}
	// A video older than the watermark never reaches ffprobe.
	if got := probeCount(t, countFile); got != 0 {
		t.Errorf("probe invocations\n\tExpected %v but got %v instead", 0, got)
	}
}

func TestFSContentHash(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	writePNG(t, filepath.Join(root, "a.png"), 16, 16, mtime)
	writePNG(t, filepath.Join(root, "b.png"), 16, 16, mtime)
	writePNG(t, filepath.Join(root, "other.png"), 24, 16, mtime)

	fsys := newTestFS(t, root, FSOptions{})
	ctx := context.Background()

	hashA, err := fsys.ContentHash(ctx, filepath.Join(root, "a.png"))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	hashB, err := fsys.ContentHash(ctx, filepath.Join(root, "b.png"))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	hashOther, err := fsys.ContentHash(ctx, filepath.Join(root, "other.png"))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}

	if len(hashA) != 64 {
		t.Errorf("hash length\n\tExpected %v but got %v instead", 64, len(hashA))
	}
	if hashA != hashB {
		t.Errorf("identical bytes\n\tExpected %v but got %v instead", hashA, hashB)
	}
	if hashA == hashOther {
		t.Errorf("distinct bytes\n\tExpected different hashes but both are %v", hashA)
	}
}

func TestFSAssetsExist(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	present := filepath.Join(root, "here.png")
	writePNG(t, present, 8, 8, mtime)
	missing := filepath.Join(root, "gone.png")

	fsys := newTestFS(t, root, FSOptions{})
	exists, err := fsys.AssetsExist(context.Background(), []string{present, missing})
	if err != nil {
		t.Fatalf("AssetsExist: %v", err)
	}

	if !exists[present] {
		t.Errorf("%v\n\tExpected %v but got %v instead", present, true, exists[present])
	}
	if exists[missing] {
		t.Errorf("%v\n\tExpected %v but got %v instead", missing, false, exists[missing])
	}
}

func TestFSOpenImage(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(root, "photo.png")
	writePNG(t, path, 32, 20, mtime)

	fsys := newTestFS(t, root, FSOptions{})
	img, err := fsys.OpenImage(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 20 {
		t.Errorf("bounds\n\tExpected %vx%v but got %vx%v instead", 32, 20, bounds.Dx(), bounds.Dy())
	}
}

func TestFSFrameAtRejectsOutOfRangePositions(t *testing.T) {
	root := t.TempDir()
	fsys := newTestFS(t, root, FSOptions{})

	for _, position := range []float64{-0.5, 0, 1, 1.5} {
		if _, err := fsys.FrameAt(context.Background(), filepath.Join(root, "clip.mp4"), position); err == nil {
			t.Errorf("position %v\n\tExpected an error but got none", position)
		}
	}
}

func TestNewFSRejectsFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.png")
	writePNG(t, path, 8, 8, time.Now())

	if _, err := NewFS(path, FSOptions{}, zap.NewNop()); err == nil {
		t.Errorf("NewFS(%v)\n\tExpected an error but got none", path)
	}
}

func TestReadExifMissing(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "plain.png")
	writePNG(t, path, 8, 8, time.Now())

	if _, err := readExif(path); err == nil {
		t.Errorf("readExif(%v)\n\tExpected an error but got none", path)
	}
}
