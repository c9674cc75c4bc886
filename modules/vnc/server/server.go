package server

import (
	"fmt"
	"net"
	"os/exec"
	"syscall"
	"time"

	"github.com/protocorn/launchway/internal/platform/logger"
	"go.uber.org/zap"
)

// Server exposes one virtual display as a remote-framebuffer stream
type Server struct {
	Port    int
	display int
	bin     string
	cmd     *exec.Cmd
	log     *logger.Logger
}

// New prepares a VNC server for a display
func New(bin string, displayNum, port int, log *logger.Logger) *Server {
	if bin == "" {
		bin = "x11vnc"
	}
	return &Server{Port: port, display: displayNum, bin: bin, log: log}
}

// Start launches the server and waits for it to accept connections
func (s *Server) Start() error {
	if s.cmd != nil {
		return fmt.Errorf("vnc server on port %d already started", s.Port)
	}
	cmd := exec.Command(s.bin,
		"-display", fmt.Sprintf(":%d", s.display),
		"-rfbport", fmt.Sprintf("%d", s.Port),
		"-localhost",
		"-forever",
		"-shared",
		"-nopw",
		"-quiet",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start vnc server: %w", err)
	}
	s.cmd = cmd

	if err := s.waitReady(5 * time.Second); err != nil {
		s.Stop()
		return err
	}
	s.log.Info("vnc server started", zap.Int("port", s.Port), zap.Int("display", s.display))
	return nil
}

// Addr returns the local TCP address of the framebuffer stream
func (s *Server) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}

func (s *Server) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", s.Addr(), 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("vnc server did not become ready on port %d", s.Port)
}

// Stop terminates the server. Best effort.
func (s *Server) Stop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	pid := s.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
	s.log.Info("vnc server stopped", zap.Int("port", s.Port))
	s.cmd = nil
}
