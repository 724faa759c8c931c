package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// frameEdge bounds the size of extracted frames before they reach the
// hashing pipeline.
const frameEdge = 256

// ffprobeResult is the decoded output of an ffprobe inspection.
type ffprobeResult struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// runProbe executes ffprobe against the given path and decodes its JSON
// output.
func runProbe(ctx context.Context, binary, path string) (ffprobeResult, error) {
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ffprobeResult{}, fmt.Errorf("probing %v: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ffprobeResult{}, fmt.Errorf("parsing probe output for %v: %w", path, err)
	}
	return result, nil
}

// durationSeconds returns the container duration, falling back to the longest
// stream duration when the container does not report one.
func (r ffprobeResult) durationSeconds() float64 {
	if d := parseSeconds(r.Format.Duration); d > 0 {
		return d
	}

	longest := 0.0
	for _, s := range r.Streams {
		if d := parseSeconds(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// videoStream returns the first video stream, or nil when there is none.
func (r ffprobeResult) videoStream() *ffprobeStream {
	for i, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return &r.Streams[i]
		}
	}
	return nil
}

func parseSeconds(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// extractFrame shells out to ffmpeg to decode a single frame at the given
// offset, scaled down to bound memory on high-resolution sources.
func extractFrame(ctx context.Context, binary, path string, seconds float64) (image.Image, error) {
	tmp, err := os.CreateTemp("", "neardup-frame-*.jpg")
	if err != nil {
		return nil, err
	}
	framePath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		_ = os.Remove(framePath)
	}()

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-hide_banner",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", path,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", frameEdge, frameEdge),
		"-y",
		framePath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("extracting frame from %v: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	return imaging.Open(framePath)
}
