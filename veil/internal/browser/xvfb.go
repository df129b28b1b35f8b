package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// display is a virtual X server for headful Chrome.
type display struct {
	name string
	cmd  *exec.Cmd
}

// startDisplay runs Xvfb on name (":99") and waits for its socket.
func startDisplay(ctx context.Context, name string) (*display, error) {
	cmd := exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("xvfb: %w", err)
	}
	d := &display{name: name, cmd: cmd}

	sock := filepath.Join("/tmp/.X11-unix", "X"+strings.TrimPrefix(name, ":"))
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(sock); err == nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			d.stop()
			return nil, fmt.Errorf("xvfb: display %s not ready: %w", name, ctx.Err())
		case <-tick.C:
		}
	}
}

func (d *display) stop() {
	if d == nil || d.cmd.Process == nil {
		return
	}
	d.cmd.Process.Kill()
	d.cmd.Wait()
}
