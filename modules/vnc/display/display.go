package display

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/protocorn/launchway/internal/platform/logger"
	"go.uber.org/zap"
)

// Display is one per-session headless X framebuffer
type Display struct {
	Num int
	bin string
	cmd *exec.Cmd
	log *logger.Logger
}

// New prepares a display on the given number
func New(bin string, num int, log *logger.Logger) *Display {
	if bin == "" {
		bin = "Xvfb"
	}
	return &Display{Num: num, bin: bin, log: log}
}

// Start launches the framebuffer process
func (d *Display) Start() error {
	if d.cmd != nil {
		return fmt.Errorf("display :%d already started", d.Num)
	}
	cmd := exec.Command(d.bin,
		fmt.Sprintf(":%d", d.Num),
		"-screen", "0", "1920x1080x24",
		"-nolisten", "tcp",
		"-ac",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start virtual display: %w", err)
	}
	d.cmd = cmd

	// Give the X server a moment to create its socket before clients bind.
	time.Sleep(300 * time.Millisecond)
	d.log.Info("virtual display started", zap.Int("display", d.Num), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Env returns the DISPLAY value clients should use
func (d *Display) Env() string {
	return fmt.Sprintf(":%d", d.Num)
}

// Stop terminates the framebuffer. Best effort; the process group is
// killed so child X clients die too.
func (d *Display) Stop() {
	if d.cmd == nil || d.cmd.Process == nil {
		return
	}
	pid := d.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = d.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
	d.log.Info("virtual display stopped", zap.Int("display", d.Num))
	d.cmd = nil
}
