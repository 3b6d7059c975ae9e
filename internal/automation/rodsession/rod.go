// Package rodsession implements automation sessions on top of go-rod.
package rodsession

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sumire/autopost/internal/automation"
)

// Launcher starts a local Chromium per session.
type Launcher struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{logger: logger}
}

func (l *Launcher) Launch(ctx context.Context, opts automation.LaunchOptions) (automation.Session, error) {
	ln := launcher.New().Headless(opts.Headless).Context(ctx)
	if opts.Bin != "" {
		ln = ln.Bin(opts.Bin)
	}
	if opts.Locale != "" {
		ln = ln.Set("lang", opts.Locale)
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("start chromium: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	s := &Session{browser: browser, launcher: ln, logger: l.logger}
	if err := s.init(opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	l.logger.Debug("browser session started", "headless", opts.Headless, "cookies", len(opts.Cookies))
	return s, nil
}

// Session owns one browser process and its main tab.
type Session struct {
	page
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger
}

func (s *Session) init(opts automation.LaunchOptions) error {
	if len(opts.Cookies) > 0 {
		if err := s.browser.SetCookies(cookieParams(opts.Cookies)); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}
	p, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	if opts.Locale != "" {
		if _, err := p.SetExtraHeaders([]string{"Accept-Language", opts.Locale}); err != nil {
			return fmt.Errorf("set locale header: %w", err)
		}
	}
	s.page = page{p: p}
	return nil
}

func (s *Session) OpenPopup(ctx context.Context, selector string, timeout time.Duration) (automation.Popup, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.p.Context(tctx)
	el, err := find(p, selector)
	if err != nil {
		return nil, err
	}
	wait := p.WaitOpen()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click %s: %w", selector, err)
	}
	opened, err := wait()
	if err != nil {
		return nil, fmt.Errorf("wait for popup: %w", err)
	}
	return &Popup{page: page{p: opened.Context(context.Background())}, browser: s.browser}, nil
}

func (s *Session) Submit(ctx context.Context, selector string, timeout time.Duration) (automation.SubmitOutcome, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.p.Context(tctx)
	el, err := find(p, selector)
	if err != nil {
		return automation.SubmitOutcome{}, err
	}

	// the dialog watcher outlives this call and accepts a dialog that opens
	// after navigation won
	dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), 2*timeout)
	waitDialog, handle := s.p.Context(dctx).HandleDialog()
	waitNav := p.WaitNavigation(proto.PageLifecycleEventNameLoad)

	dialogs := make(chan *proto.PageJavascriptDialogOpening)
	navigated := make(chan struct{})
	returned := make(chan struct{})
	defer close(returned)

	go func() {
		e := waitDialog()
		if e == nil || e.Type == "" {
			dcancel()
			return
		}
		select {
		case dialogs <- e:
		case <-returned:
			defer dcancel()
			if err := handle(&proto.PageHandleJavaScriptDialog{Accept: true}); err != nil {
				s.logger.Warn("failed to dismiss late dialog", "error", err)
				return
			}
			s.logger.Warn("dialog after submit accepted", "message", e.Message)
		}
	}()
	go func() {
		waitNav()
		close(navigated)
	}()
	// an alert blocks the click until it is handled
	go func() {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil && tctx.Err() == nil {
			s.logger.Warn("submit click failed", "selector", selector, "error", err)
		}
	}()

	select {
	case e := <-dialogs:
		defer dcancel()
		if err := handle(&proto.PageHandleJavaScriptDialog{Accept: true}); err != nil {
			s.logger.Warn("failed to dismiss dialog", "error", err)
		}
		return automation.SubmitOutcome{Dialog: true, Message: e.Message}, nil
	case <-navigated:
		if tctx.Err() != nil {
			return automation.SubmitOutcome{}, nil
		}
		return automation.SubmitOutcome{Navigated: true}, nil
	}
}

func (s *Session) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Popup is a window opened from the main tab.
type Popup struct {
	page
	browser *rod.Browser
}

func (pp *Popup) WaitClosed(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		pages, err := pp.browser.Context(ctx).Pages()
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
		open := false
		for _, other := range pages {
			if other.TargetID == pp.p.TargetID {
				open = true
				break
			}
		}
		if !open {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("popup still open after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (pp *Popup) Close() error {
	return pp.p.Close()
}

func cookieParams(cookies []automation.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		out = append(out, param)
	}
	return out
}
