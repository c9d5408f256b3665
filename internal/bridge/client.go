package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts light or dark in any case.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

var (
	ErrCanceled     = errors.New("selection canceled")
	ErrInvalidTheme = errors.New("theme must be light or dark")
)

// Payloads exchanged on the channels.
type (
	SelectFileResult struct {
		Path     string `json:"path,omitempty"`
		Canceled bool   `json:"canceled"`
	}

	SaveFileRequest struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}

	SaveFileResult struct {
		Path string `json:"path"`
	}

	ThemePayload struct {
		Theme Theme `json:"theme"`
	}

	VersionPayload struct {
		Version string `json:"version"`
	}
)

// Client is the application side of the bridge.
type Client struct {
	bus *Bus
}

func NewClient(bus *Bus) *Client {
	return &Client{bus: bus}
}

// SelectFile asks the host for a CSV file. It returns ErrCanceled when the
// user dismisses the dialog.
func (c *Client) SelectFile(ctx context.Context) (string, error) {
	var res SelectFileResult
	if err := c.bus.Invoke(ctx, ChannelSelectCSVFile, nil, &res); err != nil {
		return "", err
	}
	if res.Canceled || res.Path == "" {
		return "", ErrCanceled
	}
	return res.Path, nil
}

// SaveFile hands content to the host to be written under filename and
// returns where it was saved.
func (c *Client) SaveFile(ctx context.Context, content, filename string) (string, error) {
	var res SaveFileResult
	err := c.bus.Invoke(ctx, ChannelSaveCSVFile, SaveFileRequest{Content: content, Filename: filename}, &res)
	return res.Path, err
}

func (c *Client) Theme(ctx context.Context) (Theme, error) {
	var res ThemePayload
	err := c.bus.Invoke(ctx, ChannelGetTheme, nil, &res)
	return res.Theme, err
}

func (c *Client) SetTheme(ctx context.Context, t Theme) error {
	return c.bus.Invoke(ctx, ChannelSetTheme, ThemePayload{Theme: t}, nil)
}

func (c *Client) AppVersion(ctx context.Context) (string, error) {
	var res VersionPayload
	err := c.bus.Invoke(ctx, ChannelGetAppVersion, nil, &res)
	return res.Version, err
}

// Platform is answered locally without a round trip.
func (c *Client) Platform() string {
	return runtime.GOOS
}
