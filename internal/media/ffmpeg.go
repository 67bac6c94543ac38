package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidFrameRate is returned when a frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a file has no decodable video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrCodecRequired is returned when a recording is started without a codec or container.
	ErrCodecRequired = errors.New("codec and container are required")
)

// DefaultFrameRate is used when a stream does not report a usable frame rate.
const DefaultFrameRate = 30.0

// Compile-time checks that FFmpeg implements the media ports.
var (
	_ Prober  = (*FFmpeg)(nil)
	_ Decoder = (*FFmpeg)(nil)
	_ Encoder = (*FFmpeg)(nil)
)

// FFmpeg implements Prober, Decoder and Encoder using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string

	encodersMu sync.Mutex
	encoders   map[string]struct{}
}

// NewFFmpeg creates a new FFmpeg.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Available reports whether the ffmpeg binary can be found.
func (p *FFmpeg) Available() bool {
	_, err := exec.LookPath(p.ffmpegPath)
	return err == nil
}

// probeOutput mirrors the subset of `ffprobe -of json` output we read.
type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the natural size, duration and frame rate of the first video
// stream in path.
func (p *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate:format=duration",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Info{}, ErrNoVideoStream
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Info{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, s.Width, s.Height)
	}

	info := Info{
		Width:     s.Width,
		Height:    s.Height,
		FrameRate: parseFrameRate(s.RFrameRate),
	}
	if out.Format.Duration != "" {
		sec, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration: %w", err)
		}
		info.Duration = time.Duration(sec * float64(time.Second))
	}
	return info, nil
}

// parseFrameRate parses ffprobe rationals such as "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return DefaultFrameRate
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return DefaultFrameRate
	}
	return n / d
}

// Decode streams RGBA frames of path from start at a constant fps.
// Frames keep the natural size reported by Probe.
func (p *FFmpeg) Decode(ctx context.Context, path string, info Info, start time.Duration, fps float64) (FrameStream, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: got %.2f", ErrInvalidFrameRate, fps)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-noautorotate", // Keep frames at the probed size
		"-ss", fmt.Sprintf("%.3f", start.Seconds()),
		"-i", path,
		"-an",
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	s := &rawFrameStream{
		ctx:    ctx,
		cmd:    cmd,
		args:   args,
		stdout: bufio.NewReaderSize(stdout, info.Width*info.Height*4),
		width:  info.Width,
		height: info.Height,
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return s, nil
}

// rawFrameStream reads fixed-size rawvideo RGBA frames from an ffmpeg process.
type rawFrameStream struct {
	ctx    context.Context
	cmd    *exec.Cmd
	args   []string
	stdout io.Reader
	stderr bytes.Buffer
	width  int
	height int

	once    sync.Once
	waitErr error
}

func (s *rawFrameStream) Next() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	_, err := io.ReadFull(s.stdout, img.Pix)
	if err == nil {
		return img, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if werr := s.wait(false); werr != nil {
			if s.ctx.Err() != nil {
				return nil, fmt.Errorf("ffmpeg cancelled: %w", s.ctx.Err())
			}
			return nil, &FFmpegError{Args: s.args, Stderr: s.stderr.String(), Err: werr}
		}
		return nil, io.EOF
	}
	return nil, fmt.Errorf("read frame: %w", err)
}

func (s *rawFrameStream) Close() error {
	_ = s.wait(true)
	return nil
}

func (s *rawFrameStream) wait(kill bool) error {
	s.once.Do(func() {
		if kill && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// SupportsCodec reports whether ffmpeg was built with the named encoder.
// The encoder list is read once and cached.
func (p *FFmpeg) SupportsCodec(ctx context.Context, codec string) (bool, error) {
	p.encodersMu.Lock()
	defer p.encodersMu.Unlock()

	if p.encoders == nil {
		// #nosec G204 - ffmpegPath is set by the application, not user input
		cmd := exec.CommandContext(ctx, p.ffmpegPath, "-hide_banner", "-encoders")
		var stdout bytes.Buffer
		var stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
			}
			return false, &FFmpegError{Args: []string{"-encoders"}, Stderr: stderr.String(), Err: err}
		}
		p.encoders = parseEncoders(stdout.String())
	}

	_, ok := p.encoders[codec]
	return ok, nil
}

// parseEncoders extracts encoder names from `ffmpeg -encoders` output.
// Entries follow a " ------" separator line as "<flags> <name> <description>".
func parseEncoders(output string) map[string]struct{} {
	encoders := make(map[string]struct{})
	inList := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inList {
			if strings.HasPrefix(trimmed, "---") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = struct{}{}
	}
	return encoders
}

// EncodeWebP encodes img as a lossy WebP through ffmpeg's libwebp encoder.
func (p *FFmpeg) EncodeWebP(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("encode intermediate png: %w", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "png_pipe",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-c:v", "libwebp",
		"-lossless", "0",
		"-quality", strconv.Itoa(quality),
		"-f", "image2pipe",
		"pipe:1",
	}

	var out bytes.Buffer
	if err := p.runFFmpeg(ctx, args, &in, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Record starts an ffmpeg process that encodes raw RGBA frames written through
// the returned Recording. Encoded output is collected from stdout as chunks.
func (p *FFmpeg) Record(ctx context.Context, spec RecordSpec) (Recording, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, spec.Width, spec.Height)
	}
	if spec.FPS <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameRate, spec.FPS)
	}
	if spec.Codec == "" || spec.Container == "" {
		return nil, ErrCodecRequired
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", strconv.Itoa(spec.FPS),
		"-i", "pipe:0",
		"-an",
		// Even dimensions are required by yuv420p
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2:color=white",
		"-c:v", spec.Codec,
		"-pix_fmt", "yuv420p",
	}
	if spec.Container == "mp4" {
		// A seekable moov atom is impossible on a pipe; fragment instead
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	args = append(args, "-f", spec.Container, "pipe:1")

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}

	r := &ffmpegRecording{
		ctx:      ctx,
		cmd:      cmd,
		args:     args,
		stdin:    stdin,
		spec:     spec,
		readDone: make(chan struct{}),
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	go r.collect(stdout)
	return r, nil
}

// ffmpegRecording feeds frames to an ffmpeg encoder and accumulates its output.
type ffmpegRecording struct {
	ctx    context.Context
	cmd    *exec.Cmd
	args   []string
	stdin  io.WriteCloser
	stderr bytes.Buffer
	spec   RecordSpec

	// fitted is the scratch frame used when a written frame has a different size.
	fitted *image.RGBA

	chunksMu sync.Mutex
	chunks   [][]byte
	readErr  error
	readDone chan struct{}

	once    sync.Once
	waitErr error
}

func (r *ffmpegRecording) collect(stdout io.Reader) {
	defer close(r.readDone)
	buf := make([]byte, 64*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.chunksMu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.chunksMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.chunksMu.Lock()
				r.readErr = err
				r.chunksMu.Unlock()
			}
			return
		}
	}
}

func (r *ffmpegRecording) WriteFrame(img *image.RGBA) error {
	frame := r.fit(img)
	w := r.spec.Width * 4
	if frame.Stride == w {
		if _, err := r.stdin.Write(frame.Pix[:w*r.spec.Height]); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		return nil
	}
	for y := 0; y < r.spec.Height; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w]
		if _, err := r.stdin.Write(row); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}

// fit returns img unchanged when it matches the recording size, otherwise a
// nearest-neighbour rescale that keeps cell edges crisp.
func (r *ffmpegRecording) fit(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	if b.Min == (image.Point{}) && b.Dx() == r.spec.Width && b.Dy() == r.spec.Height {
		return img
	}
	if r.fitted == nil {
		r.fitted = image.NewRGBA(image.Rect(0, 0, r.spec.Width, r.spec.Height))
	}
	xdraw.NearestNeighbor.Scale(r.fitted, r.fitted.Bounds(), img, b, xdraw.Src, nil)
	return r.fitted
}

func (r *ffmpegRecording) Stop() ([][]byte, error) {
	if err := r.finish(false); err != nil {
		if r.ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", r.ctx.Err())
		}
		return nil, &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
	}

	r.chunksMu.Lock()
	defer r.chunksMu.Unlock()
	if r.readErr != nil {
		return nil, fmt.Errorf("read encoder output: %w", r.readErr)
	}
	return r.chunks, nil
}

func (r *ffmpegRecording) Close() error {
	_ = r.finish(true)
	return nil
}

// finish closes the encoder input and reaps the process exactly once. Output
// must be fully drained before Wait closes the stdout pipe.
func (r *ffmpegRecording) finish(kill bool) error {
	r.once.Do(func() {
		_ = r.stdin.Close()
		if kill && r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		<-r.readDone
		r.waitErr = r.cmd.Wait()
	})
	return r.waitErr
}

// runFFmpeg executes ffmpeg wired to the given stdin and stdout and returns
// an error containing stderr output if the command fails.
func (p *FFmpeg) runFFmpeg(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
