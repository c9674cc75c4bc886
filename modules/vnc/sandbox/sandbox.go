package sandbox

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/logger"
	"go.uber.org/zap"
)

// Sandbox launches one browser under a low-privilege identity with a
// private home, bound to a virtual display, in single-URL app mode.
type Sandbox struct {
	Home      string
	DebugPort int

	cfg        config.SandboxConfig
	displayEnv string
	targetURL  string
	cmd        *exec.Cmd
	log        *logger.Logger
}

// New prepares a sandbox. home must already be allocated to this session.
func New(cfg config.SandboxConfig, home, displayEnv, targetURL string, debugPort int, log *logger.Logger) *Sandbox {
	return &Sandbox{
		Home:       home,
		DebugPort:  debugPort,
		cfg:        cfg,
		displayEnv: displayEnv,
		targetURL:  targetURL,
		log:        log,
	}
}

// CreateHome creates the per-session home with owner-only permissions
func CreateHome(root, userID, sessionID string) (string, error) {
	home := filepath.Join(root, userID, sessionID)
	if err := os.MkdirAll(home, 0o700); err != nil {
		return "", fmt.Errorf("unable to create sandbox home: %w", err)
	}
	return home, nil
}

// RemoveHome deletes a session's home tree
func RemoveHome(home string) error {
	return os.RemoveAll(home)
}

// Start launches the browser and waits for its debug endpoint
func (s *Sandbox) Start() error {
	if s.cmd != nil {
		return fmt.Errorf("sandbox browser already started")
	}

	origin, err := originOf(s.targetURL)
	if err != nil {
		return err
	}

	args := []string{
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-sync",
		"--disable-extensions",
		"--disable-background-networking",
		"--no-sandbox",
		fmt.Sprintf("--user-data-dir=%s", filepath.Join(s.Home, ".chromium")),
		fmt.Sprintf("--remote-debugging-port=%d", s.DebugPort),
		// App mode: no tabs, no address bar, one origin.
		fmt.Sprintf("--app=%s", origin),
	}

	cmd := exec.Command(s.cfg.ChromiumBin, args...)
	cmd.Env = append(os.Environ(),
		"DISPLAY="+s.displayEnv,
		"HOME="+s.Home,
	)
	cmd.Dir = s.Home
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if cred := s.credential(); cred != nil {
		cmd.SysProcAttr.Credential = cred
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to launch sandbox browser: %w", err)
	}
	s.cmd = cmd

	if err := s.waitDebugReady(10 * time.Second); err != nil {
		s.Stop()
		return err
	}
	s.log.Info("sandbox browser started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("debug_port", s.DebugPort),
		zap.String("home", s.Home),
	)
	return nil
}

// credential resolves the low-privilege identity, or nil when the
// configured user does not exist (development hosts run as the caller).
func (s *Sandbox) credential() *syscall.Credential {
	if s.cfg.RunAsUser == "" {
		return nil
	}
	u, err := user.Lookup(s.cfg.RunAsUser)
	if err != nil {
		s.log.Warn("sandbox user not found, running as current user",
			zap.String("user", s.cfg.RunAsUser))
		return nil
	}
	uid, err1 := strconv.Atoi(u.Uid)
	gid, err2 := strconv.Atoi(u.Gid)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
}

// DebugURL returns the DevTools endpoint the automation driver attaches to
func (s *Sandbox) DebugURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.DebugPort)
}

// Alive reports whether the browser process is still running
func (s *Sandbox) Alive() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	return s.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (s *Sandbox) waitDebugReady(timeout time.Duration) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.DebugPort)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("browser debug port %d not ready", s.DebugPort)
}

// Stop kills the browser process group and waits for exit. The fleet only
// frees the session's ports once this returns.
func (s *Sandbox) Stop() {
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
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
	s.log.Info("sandbox browser stopped", zap.Int("pid", pid))
	s.cmd = nil
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid target url %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// GuardScript is injected into every page of the session. It blocks
// new-tab/new-window escapes and renders the secure-session indicator.
const GuardScript = `() => {
	if (window.__lwGuardsInstalled) return;
	window.__lwGuardsInstalled = true;

	window.open = () => null;

	document.addEventListener('keydown', (e) => {
		const k = e.key.toLowerCase();
		const combo = e.ctrlKey || e.metaKey;
		if (combo && (k === 't' || k === 'n' || k === 'w')) {
			e.preventDefault();
			e.stopPropagation();
		}
		if (combo && e.shiftKey && (k === 't' || k === 'n')) {
			e.preventDefault();
			e.stopPropagation();
		}
	}, true);

	document.addEventListener('click', (e) => {
		const a = e.target.closest && e.target.closest('a[target="_blank"]');
		if (a) a.removeAttribute('target');
	}, true);

	const banner = document.createElement('div');
	banner.textContent = 'Secure application session';
	banner.style.cssText = 'position:fixed;top:0;right:0;z-index:2147483647;' +
		'background:#1a7f37;color:#fff;font:12px sans-serif;padding:4px 10px;' +
		'border-bottom-left-radius:6px;pointer-events:none;opacity:0.9;';
	const attach = () => document.body && document.body.appendChild(banner);
	if (document.body) attach();
	else document.addEventListener('DOMContentLoaded', attach);
}`
