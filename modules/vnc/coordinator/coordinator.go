package coordinator

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/browser"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/vnc/bridge"
	"github.com/protocorn/launchway/modules/vnc/display"
	"github.com/protocorn/launchway/modules/vnc/model"
	"github.com/protocorn/launchway/modules/vnc/sandbox"
	vncserver "github.com/protocorn/launchway/modules/vnc/server"
	"go.uber.org/zap"
)

// Coordinator owns the per-session resource group: virtual display, VNC
// server, WebSocket bridge, sandbox home and browser, and the automation
// driver. All of it is acquired together and released together on every
// exit path.
type Coordinator struct {
	SessionID  string
	UserID     string
	JobURL     string
	Allocation model.Allocation

	display *display.Display
	vnc     *vncserver.Server
	bridge  *bridge.Bridge
	sandbox *sandbox.Sandbox
	driver  *browser.Driver
	page    *rod.Page

	log *logger.Logger
}

// New prepares a coordinator for one allocated session
func New(sessionID, userID, jobURL string, alloc model.Allocation, log *logger.Logger) *Coordinator {
	return &Coordinator{
		SessionID:  sessionID,
		UserID:     userID,
		JobURL:     jobURL,
		Allocation: alloc,
		log:        log.WithSession(sessionID),
	}
}

// Start brings the whole group up in order: display, VNC server, bridge,
// sandbox home + browser, driver, guards. Any failure tears down what
// already started.
func (c *Coordinator) Start(ctx context.Context, cfg config.SandboxConfig, injectResume func(home string) (string, error)) (resumePath string, err error) {
	defer func() {
		if err != nil {
			c.Stop()
		}
	}()

	c.display = display.New(cfg.XvfbBin, c.Allocation.DisplayNum, c.log)
	if err = c.display.Start(); err != nil {
		return "", err
	}

	c.vnc = vncserver.New(cfg.X11VNCBin, c.Allocation.DisplayNum, c.Allocation.VNCPort, c.log)
	if err = c.vnc.Start(); err != nil {
		return "", err
	}

	c.bridge = bridge.New(c.Allocation.WebSocketPort, c.vnc.Addr(), c.log)
	if err = c.bridge.Start(); err != nil {
		return "", err
	}

	if injectResume != nil {
		resumePath, err = injectResume(c.Allocation.SandboxHome)
		if err != nil {
			return "", fmt.Errorf("resume injection failed: %w", err)
		}
	}

	debugPort := c.Allocation.VNCPort + 3000
	c.sandbox = sandbox.New(cfg, c.Allocation.SandboxHome, c.display.Env(), c.JobURL, debugPort, c.log)
	if err = c.sandbox.Start(); err != nil {
		return "", err
	}

	c.driver, err = browser.Connect(ctx, c.sandbox.DebugURL())
	if err != nil {
		return "", err
	}

	c.page, err = c.driver.Page(ctx)
	if err != nil {
		return "", err
	}

	if err = c.installGuards(); err != nil {
		c.log.Warn("client-side guards not installed", zap.Error(err))
		err = nil
	}

	c.log.Info("vnc coordinator started",
		zap.Int("display", c.Allocation.DisplayNum),
		zap.Int("vnc_port", c.Allocation.VNCPort),
		zap.Int("ws_port", c.Allocation.WebSocketPort),
	)
	return resumePath, nil
}

// installGuards arranges for the guard script to run in every new
// document of the session.
func (c *Coordinator) installGuards() error {
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{
		Source: "(" + sandbox.GuardScript + ")()",
	}.Call(c.page)
	if err != nil {
		return err
	}
	// Cover the document that is already open.
	_, evalErr := c.page.Eval(sandbox.GuardScript)
	return evalErr
}

// Page returns the live automation page
func (c *Coordinator) Page() *rod.Page {
	return c.page
}

// VNCAddr returns the local framebuffer endpoint for viewer tunneling
func (c *Coordinator) VNCAddr() string {
	return c.vnc.Addr()
}

// BrowserAlive reports whether the sandbox browser still runs
func (c *Coordinator) BrowserAlive() bool {
	return c.sandbox != nil && c.sandbox.Alive()
}

// Stop releases everything in reverse order. Every step is best-effort
// and logged; it never returns before the browser is known dead, so the
// fleet can safely free the ports afterwards.
func (c *Coordinator) Stop() {
	if c.driver != nil {
		if err := c.driver.Close(); err != nil {
			c.log.Debug("driver close failed", zap.Error(err))
		}
		c.driver = nil
		c.page = nil
	}
	if c.sandbox != nil {
		c.sandbox.Stop()
		c.sandbox = nil
	}
	if c.bridge != nil {
		c.bridge.Stop()
		c.bridge = nil
	}
	if c.vnc != nil {
		c.vnc.Stop()
		c.vnc = nil
	}
	if c.display != nil {
		c.display.Stop()
		c.display = nil
	}
	if err := sandbox.RemoveHome(c.Allocation.SandboxHome); err != nil {
		c.log.Warn("sandbox home cleanup failed", zap.Error(err))
	}
	c.log.Info("vnc coordinator stopped")
}
