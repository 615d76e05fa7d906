// Package capture renders the timeline preview page to PNG with a headless
// Chromium driven by chromedp.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"apptline/internal/convert"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultTimeout = 30 * time.Second

	// readySelector matches the page root once the layout is rendered.
	readySelector = `[data-ready="true"]`
)

var (
	ErrNoBaseURL    = errors.New("capture: base URL is required")
	ErrNoOutputPath = errors.New("capture: output path is required")
)

// Options describes one screenshot.
type Options struct {
	// BaseURL is the root of the running web server, e.g.
	// "http://127.0.0.1:8080".
	BaseURL string

	// Resource selects the board; empty means the server's default.
	Resource string

	// OutputPath receives the PNG. The file is replaced atomically.
	OutputPath string

	// Width and Height are the viewport in pixels; zero uses the defaults.
	Width  int
	Height int

	// Username and Password are sent as basic auth when set.
	Username string
	Password string

	// Timeout bounds the whole capture; zero uses DefaultTimeout.
	Timeout time.Duration

	// Tricolor reduces the PNG to the black/red/white e-paper palette.
	Tricolor bool

	// Planes also writes packed 1bpp planes to OutputPath+".black.bin" and
	// OutputPath+".red.bin". Implies Tricolor.
	Planes bool
}

func (o *Options) normalize() error {
	if o.BaseURL == "" {
		return ErrNoBaseURL
	}
	if o.OutputPath == "" {
		return ErrNoOutputPath
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// TimelineURL returns the preview page address for o.
func (o Options) TimelineURL() (string, error) {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("capture: parse base URL: %w", err)
	}
	u = u.JoinPath("timeline")
	if o.Resource != "" {
		q := u.Query()
		q.Set("resource", o.Resource)
		u.RawQuery = q.Encode()
	}
	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
	}
	return u.String(), nil
}

// CaptureTimelinePNG opens the timeline page in headless Chromium, waits
// until the page marks itself ready and writes a screenshot to
// opts.OutputPath.
func CaptureTimelinePNG(parent context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	target, err := opts.TimelineURL()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var shot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(target),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	return writeOutputs(shot, opts)
}

// writeOutputs stores the screenshot, converted to the e-paper palette
// and packed into planes when opts asks for it.
func writeOutputs(shot []byte, opts Options) error {
	if !opts.Tricolor && !opts.Planes {
		return writeFileAtomic(opts.OutputPath, shot)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return fmt.Errorf("capture: decode screenshot: %w", err)
	}
	tri, err := convert.Tricolor(img)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, tri); err != nil {
		return fmt.Errorf("capture: encode tricolor PNG: %w", err)
	}
	if err := writeFileAtomic(opts.OutputPath, buf.Bytes()); err != nil {
		return err
	}

	if !opts.Planes {
		return nil
	}
	black, red := convert.PackPlanes(tri)
	if err := writeFileAtomic(opts.OutputPath+".black.bin", black); err != nil {
		return err
	}
	return writeFileAtomic(opts.OutputPath+".red.bin", red)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".capture-*.tmp")
	if err != nil {
		return fmt.Errorf("capture: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("capture: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("capture: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("capture: rename %s: %w", path, err)
	}
	return nil
}
