// infrastructure/ffmpeg_transcoder.go
package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/vitovidale/clip-processor-service/domain"
)

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// FFmpegTranscoder shells out to ffmpeg and ffprobe.
type FFmpegTranscoder struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
	runner      commandRunner
}

func NewFFmpegTranscoder(ffmpegPath, ffprobePath, workDir string) *FFmpegTranscoder {
	return &FFmpegTranscoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, WorkDir: workDir, runner: execRunner{}}
}

func audioArgs(format domain.AudioFormat) []string {
	codec := "pcm_s16le"
	if format.BitsPerSample == 24 {
		codec = "pcm_s24le"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-c:a", codec,
		"-f", format.Container,
		"pipe:1",
	}
}

// ExtractAudio pipes the video through ffmpeg. The returned stream reports
// the process exit status once it is drained or closed, so a transcode that
// dies midway surfaces as a read or close error rather than a short file.
func (t *FFmpegTranscoder) ExtractAudio(ctx context.Context, video io.Reader, format domain.AudioFormat) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, t.FFmpegPath, audioArgs(format)...)
	cmd.Stdin = video
	stderr := &boundedBuffer{max: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &processReader{cmd: cmd, out: stdout, stderr: stderr}, nil
}

type processReader struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *boundedBuffer

	once    sync.Once
	waitErr error
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if errors.Is(err, io.EOF) {
		if werr := p.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (p *processReader) Close() error {
	p.out.Close()
	return p.wait()
}

func (p *processReader) wait() error {
	p.once.Do(func() {
		if err := p.cmd.Wait(); err != nil {
			p.waitErr = fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(p.stderr.String()))
		}
	})
	return p.waitErr
}

// boundedBuffer keeps the first max bytes written to it.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func clipArgs(src, dst string, start, end float64) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", src,
		"-t", strconv.FormatFloat(end-start, 'f', 3, 64),
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		dst,
	}
}

// ExtractClip renders [start, end) of the local file into a temporary mp4.
// Closing the returned reader removes the file.
func (t *FFmpegTranscoder) ExtractClip(ctx context.Context, videoPath string, startSeconds, endSeconds float64) (io.ReadCloser, error) {
	if endSeconds <= startSeconds {
		return nil, domain.NewValidationError("transcoder.clip", "empty range %.3f-%.3f", startSeconds, endSeconds)
	}
	if err := os.MkdirAll(t.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(t.WorkDir, "clip-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create clip file: %w", err)
	}
	dst := tmp.Name()
	tmp.Close()

	res, err := t.runner.Run(ctx, t.FFmpegPath, clipArgs(videoPath, dst, startSeconds, endSeconds)...)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("ffmpeg clip (exit %d): %w: %s", res.ExitCode, err, strings.TrimSpace(res.Stderr))
	}
	f, err := os.Open(dst)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("open clip file: %w", err)
	}
	return &tempFileReader{File: f}, nil
}

type tempFileReader struct {
	*os.File
}

func (r *tempFileReader) Close() error {
	err := r.File.Close()
	if rmErr := os.Remove(r.File.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

func (t *FFmpegTranscoder) GetDuration(ctx context.Context, videoPath string) (float64, error) {
	res, err := t.runner.Run(ctx, t.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	if err != nil {
		return 0, fmt.Errorf("ffprobe (exit %d): %w: %s", res.ExitCode, err, strings.TrimSpace(res.Stderr))
	}
	out := strings.TrimSpace(res.Stdout)
	d, err := strconv.ParseFloat(out, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ffprobe returned unusable duration %q", out)
	}
	return d, nil
}
