package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/cjeanneret/PhotoBooth/internal/debug"
	"github.com/cjeanneret/PhotoBooth/internal/raster"
)

// FFmpegConfig describes an ffmpeg-backed source.
type FFmpegConfig struct {
	// Input is a device ("/dev/video0", "0") or a video file path.
	Input string
	// Format is the ffmpeg input format ("v4l2", "avfoundation", "dshow").
	// Empty means Input is a file, whose size is read with ffprobe and which is looped.
	Format string
	Width  int
	Height int
	FPS    int
}

// FFmpeg reads raw RGBA frames from an ffmpeg child process. A reader
// goroutine keeps only the latest frame.
type FFmpeg struct {
	cfg   FFmpegConfig
	inspect func(context.Context, string) (string, error)

	mu      sync.Mutex
	box     *mailbox
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewFFmpeg returns a closed ffmpeg source.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.FPS <= 0 {
		cfg.FPS = 15
	}
	return &FFmpeg{cfg: cfg, inspect: runFFprobe}
}

// runFFprobe runs ffprobe, killed at ctx's deadline.
func runFFprobe(ctx context.Context, path string) (string, error) {
	var timeout time.Duration
	if dl, ok := ctx.Deadline(); ok {
		if timeout = time.Until(dl); timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}
	return ffmpeg.ProbeWithTimeout(path, timeout, nil)
}

// Size implements Source.
func (f *FFmpeg) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.Width, f.cfg.Height
}

// Open starts ffmpeg. ctx bounds reading a file input's size; once
// started the process runs until Close.
func (f *FFmpeg) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	if f.cfg.Input == "" {
		return fmt.Errorf("%w: no input configured", ErrSourceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.cfg.Width <= 0 || f.cfg.Height <= 0 {
		if f.cfg.Format != "" {
			return fmt.Errorf("%w: device %s needs an explicit size", ErrSourceUnavailable, f.cfg.Input)
		}
		w, h, err := f.mediaSize(ctx, f.cfg.Input)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		f.cfg.Width, f.cfg.Height = w, h
	}

	pr, pw := io.Pipe()
	runCtx, cancel := context.WithCancel(context.Background())
	stream := f.stream().WithOutput(pw).WithErrorOutput(logWriter{})
	stream.Context = runCtx

	f.box = newMailbox()
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	debug.Info("Camera: starting ffmpeg on %s (%dx%d @ %d fps)", f.cfg.Input, f.cfg.Width, f.cfg.Height, f.cfg.FPS)
	debug.Trace("ffmpeg %v", stream.GetArgs())

	go func() {
		err := stream.Run()
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
	}()
	go f.readLoop(pr, f.box, f.cfg.Width, f.cfg.Height, f.done)
	return nil
}

// stream builds the ffmpeg graph: input → scaled, paced rawvideo RGBA.
func (f *FFmpeg) stream() *ffmpeg.Stream {
	in := ffmpeg.KwArgs{}
	if f.cfg.Format != "" {
		in["f"] = f.cfg.Format
		in["framerate"] = f.cfg.FPS
		in["video_size"] = fmt.Sprintf("%dx%d", f.cfg.Width, f.cfg.Height)
	} else {
		in["stream_loop"] = -1
	}
	return ffmpeg.Input(f.cfg.Input, in).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":   "rawvideo",
			"pix_fmt":  "rgba",
			"vf":       fmt.Sprintf("fps=%d,scale=%d:%d,realtime", f.cfg.FPS, f.cfg.Width, f.cfg.Height),
			"loglevel": "error",
		})
}

// readLoop splits the pipe into frames and posts them to box until the
// pipe fails.
func (f *FFmpeg) readLoop(r io.ReadCloser, box *mailbox, w, h int, done chan struct{}) {
	defer close(done)
	defer r.Close()

	size := w * h * 4
	frames := 0
	for {
		pix := make([]uint8, size)
		if _, err := io.ReadFull(r, pix); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				debug.Verbose("Camera: ffmpeg stopped: %v", err)
			}
			box.fail(ErrSourceUnavailable)
			return
		}
		buf, _ := raster.Wrap(w, h, pix)
		box.put(buf)
		frames++
		if frames == 1 {
			debug.Verbose("Camera: first frame received")
		}
	}
}

// Grab implements Source.
func (f *FFmpeg) Grab(ctx context.Context) (*raster.Buffer, error) {
	f.mu.Lock()
	box := f.box
	running := f.running
	f.mu.Unlock()
	if !running || box == nil {
		return nil, ErrSourceUnavailable
	}
	return box.latest(ctx)
}

// Close stops ffmpeg and waits for the reader to exit.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	cancel, done, box := f.cancel, f.done, f.box
	f.mu.Unlock()

	box.fail(ErrSourceUnavailable)
	cancel()
	<-done
	debug.Info("Camera: ffmpeg stopped")
	return nil
}

type streamInfo struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (f *FFmpeg) mediaSize(ctx context.Context, path string) (int, int, error) {
	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := f.inspect(ctx, path)
		ch <- result{out, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
	if r.err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, r.err)
	}
	return parseStreamInfo(r.out)
}

// parseStreamInfo returns the size of the first video stream in ffprobe's JSON.
func parseStreamInfo(out string) (int, int, error) {
	var p streamInfo
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	for _, s := range p.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, errors.New("no video stream found")
}

// logWriter forwards ffmpeg's stderr to the verbose log.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	debug.Verbose("ffmpeg: %s", bytes.TrimSpace(p))
	return len(p), nil
}
