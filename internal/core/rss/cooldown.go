package rss

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Cooldown throttles manual refreshes from a client. It is advisory: the
// server does not enforce it. The time of the last successful refresh is kept
// as unix milliseconds in a small state file.
type Cooldown struct {
	path   string
	window time.Duration
	now    func() time.Time
}

func NewCooldown(path string, window time.Duration) *Cooldown {
	return &Cooldown{path: path, window: window, now: time.Now}
}

// LastRefresh returns the recorded refresh time, if any.
func (c *Cooldown) LastRefresh() (time.Time, bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read refresh state: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		// A corrupt state file should not lock the user out.
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Remaining returns how long until another refresh is allowed; zero means now.
func (c *Cooldown) Remaining() (time.Duration, error) {
	last, ok, err := c.LastRefresh()
	if err != nil || !ok {
		return 0, err
	}
	elapsed := c.now().Sub(last)
	if elapsed < 0 || elapsed >= c.window {
		return 0, nil
	}
	return c.window - elapsed, nil
}

func (c *Cooldown) CanRefresh() (bool, error) {
	d, err := c.Remaining()
	return d == 0, err
}

// Record stores the current time as the last successful refresh.
func (c *Cooldown) Record() error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	ms := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := os.WriteFile(c.path, []byte(ms), 0o644); err != nil {
		return fmt.Errorf("failed to write refresh state: %w", err)
	}
	return nil
}
