package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"spendwise/internal/core"
	"spendwise/internal/log"
)

// Picker shows a file dialog. ok is false when the user cancels.
type Picker interface {
	PickFile(ctx context.Context, extensions []string) (path string, ok bool, err error)
}

// StaticPicker always returns Path; an empty Path means canceled.
type StaticPicker struct {
	Path string
}

func (p StaticPicker) PickFile(context.Context, []string) (string, bool, error) {
	return p.Path, p.Path != "", nil
}

// PromptPicker asks for a path on a terminal. An empty line cancels.
type PromptPicker struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptPicker) PickFile(_ context.Context, extensions []string) (string, bool, error) {
	fmt.Fprintf(p.Out, "File path (%s, empty to cancel): ", strings.Join(extensions, ", "))
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	path := strings.TrimSpace(line)
	return path, path != "", nil
}

// Host serves bridge requests.
type Host struct {
	bus       *Bus
	picker    Picker
	saveDir   string
	themeFile string
	version   string
	logger    *log.Logger

	themeMu sync.Mutex
}

type HostOption func(*Host)

// WithLogger sets the parent logger; the host logs under the bridge
// component.
func WithLogger(l *log.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

func NewHost(bus *Bus, picker Picker, saveDir, themeFile, version string, opts ...HostOption) *Host {
	h := &Host{
		bus:       bus,
		picker:    picker,
		saveDir:   saveDir,
		themeFile: themeFile,
		version:   version,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = log.Wrap(slog.Default(), log.ComponentBridge)
	} else {
		h.logger = h.logger.WithComponent(log.ComponentBridge)
	}
	return h
}

// Serve answers requests until ctx is done or the bus is closed. Each
// request is handled on its own goroutine.
func (h *Host) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.bus.Done():
			return nil
		case req := <-h.bus.Requests():
			wg.Add(1)
			go func() {
				defer wg.Done()
				payload, err := h.dispatch(ctx, req)
				if err != nil {
					h.logger.WarnContext(ctx, "Bridge request failed",
						log.FieldChannel, req.Channel,
						log.FieldError, err)
				}
				req.Reply(payload, err)
			}()
		}
	}
}

func (h *Host) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Channel {
	case ChannelSelectCSVFile:
		return h.selectFile(ctx)
	case ChannelSaveCSVFile:
		var in SaveFileRequest
		if err := decode(req, &in); err != nil {
			return nil, err
		}
		return h.saveFile(ctx, in)
	case ChannelGetTheme:
		t, err := h.theme(ctx)
		return ThemePayload{Theme: t}, err
	case ChannelSetTheme:
		var in ThemePayload
		if err := decode(req, &in); err != nil {
			return nil, err
		}
		t, err := h.setTheme(in.Theme)
		return ThemePayload{Theme: t}, err
	case ChannelGetAppVersion:
		return VersionPayload{Version: h.version}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownChannel, req.Channel)
	}
}

func decode(req Request, out any) error {
	if err := json.Unmarshal(req.Payload, out); err != nil {
		return core.Validation("bridge."+req.Channel, err)
	}
	return nil
}

func (h *Host) selectFile(ctx context.Context) (SelectFileResult, error) {
	if h.picker == nil {
		return SelectFileResult{Canceled: true}, nil
	}
	path, ok, err := h.picker.PickFile(ctx, []string{".csv"})
	if err != nil {
		return SelectFileResult{}, err
	}
	if !ok {
		return SelectFileResult{Canceled: true}, nil
	}
	return SelectFileResult{Path: path}, nil
}

// saveFile writes into the save directory only; any directory part of the
// requested name is dropped.
func (h *Host) saveFile(ctx context.Context, in SaveFileRequest) (SaveFileResult, error) {
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return SaveFileResult{}, core.Validation("bridge.save", errors.New("filename is required"))
	}
	if err := os.MkdirAll(h.saveDir, 0o755); err != nil {
		return SaveFileResult{}, fmt.Errorf("create save directory: %w", err)
	}
	path := filepath.Join(h.saveDir, name)
	if err := writeFileAtomic(path, []byte(in.Content)); err != nil {
		return SaveFileResult{}, err
	}
	h.logger.InfoContext(ctx, "File saved", "path", path, "bytes", len(in.Content))
	return SaveFileResult{Path: path}, nil
}

// theme reads the stored preference, defaulting to light.
func (h *Host) theme(ctx context.Context) (Theme, error) {
	h.themeMu.Lock()
	defer h.themeMu.Unlock()

	b, err := os.ReadFile(h.themeFile)
	if errors.Is(err, os.ErrNotExist) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", fmt.Errorf("read theme: %w", err)
	}
	var p ThemePayload
	if err := json.Unmarshal(b, &p); err != nil {
		h.logger.WarnContext(ctx, "Ignoring unreadable theme file", "path", h.themeFile, log.FieldError, err)
		return ThemeLight, nil
	}
	t, err := ParseTheme(string(p.Theme))
	if err != nil {
		return ThemeLight, nil
	}
	return t, nil
}

func (h *Host) setTheme(t Theme) (Theme, error) {
	t, err := ParseTheme(string(t))
	if err != nil {
		return "", core.Validation("bridge.set_theme", err)
	}

	h.themeMu.Lock()
	defer h.themeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.themeFile), 0o755); err != nil {
		return "", fmt.Errorf("create theme directory: %w", err)
	}
	b, err := json.Marshal(ThemePayload{Theme: t})
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(h.themeFile, b); err != nil {
		return "", err
	}
	return t, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
