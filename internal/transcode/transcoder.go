// Package transcode is the boundary to the media transcoder. The core
// never touches media bytes; it hands a local path to the transcoder and
// receives a new local path back.
package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcoder consumes a local file and produces a new local file
type Transcoder interface {
	// ToAudio extracts the audio track to an mp3 next to src
	ToAudio(ctx context.Context, src string) (string, error)
	// ToMP4 remuxes or re-encodes src into a browser-playable mp4
	ToMP4(ctx context.Context, src string) (string, error)
}

// ConvertPolicy decides whether a downloaded container needs conversion
// before it is browser-playable.
type ConvertPolicy interface {
	ShouldConvertToPlayable(path string) bool
}

// ConvertPolicyFunc adapts a function to ConvertPolicy
type ConvertPolicyFunc func(path string) bool

// ShouldConvertToPlayable implements ConvertPolicy
func (f ConvertPolicyFunc) ShouldConvertToPlayable(path string) bool {
	return f(path)
}

var convertPolicies = map[string]ConvertPolicy{}

// RegisterConvertPolicy makes a named policy selectable through config
func RegisterConvertPolicy(name string, policy ConvertPolicy) {
	convertPolicies[name] = policy
}

// LookupConvertPolicy resolves a configured policy name; the empty name
// returns the extension-based default.
func LookupConvertPolicy(name string) (ConvertPolicy, error) {
	if name == "" {
		return ConvertPolicyFunc(defaultShouldConvert), nil
	}
	policy, ok := convertPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown convert policy %q", name)
	}
	return policy, nil
}

// defaultShouldConvert flags containers browsers will not play natively
func defaultShouldConvert(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".webm":
		return false
	}
	return true
}

// FFmpegTranscoder shells out to ffmpeg
type FFmpegTranscoder struct {
	binary string
}

// NewFFmpegTranscoder creates a transcoder using the given ffmpeg binary
// (empty means "ffmpeg" on PATH).
func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTranscoder{binary: binary}
}

// ToAudio implements Transcoder
func (t *FFmpegTranscoder) ToAudio(ctx context.Context, src string) (string, error) {
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"
	cmd := exec.CommandContext(ctx, t.binary, "-y", "-i", src, "-vn", "-q:a", "2", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("audio transcode failed: %w: %s", err, tail(out))
	}
	return dst, nil
}

// ToMP4 implements Transcoder
func (t *FFmpegTranscoder) ToMP4(ctx context.Context, src string) (string, error) {
	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp4"
	cmd := exec.CommandContext(ctx, t.binary, "-y", "-i", src, "-c:v", "libx264", "-c:a", "aac", "-movflags", "+faststart", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("mp4 transcode failed: %w: %s", err, tail(out))
	}
	return dst, nil
}

func tail(out []byte) string {
	const max = 512
	if len(out) <= max {
		return string(out)
	}
	return string(out[len(out)-max:])
}
