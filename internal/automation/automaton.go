// Package automation drives a browser session through a destination's
// compose flow: authenticate, open the write page, fill the form, upload
// assets, solve the challenge, submit and find the published entry.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// PostParams is everything one posting run needs.
type PostParams struct {
	Destination string
	TargetURL   string
	Title       string
	ContentHTML string
	Nickname    string
	Password    string
	Headtext    string
	ImagePaths  []string
	// LoginID selects a saved cookie set. LoginPassword is only used by the
	// separate login flow that produces that set.
	LoginID       string
	LoginPassword string
	Headless      bool
	Progress      func(msg string)
}

// Result is the outcome of a run.
type Result struct {
	Success bool
	Message string
	URL     string
}

// Automaton runs posting attempts, one session per call.
type Automaton struct {
	launcher Launcher
	cookies  CookieStore
	solver   ChallengeSolver
	profiles map[string]Profile
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(launcher Launcher, cookies CookieStore, solver ChallengeSolver, profiles map[string]Profile, opts Options, logger *slog.Logger) *Automaton {
	if logger == nil {
		logger = slog.Default()
	}
	return &Automaton{
		launcher: launcher,
		cookies:  cookies,
		solver:   solver,
		profiles: profiles,
		opts:     opts.withDefaults(),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// run holds the state of one PostArticle call.
type run struct {
	a       *Automaton
	params  PostParams
	profile Profile
	session Session
}

// PostArticle performs one posting attempt. Any fatal condition is returned
// as a *StepError whose message is also set on the result. The browser
// session is closed exactly once on every path.
func (a *Automaton) PostArticle(ctx context.Context, params PostParams) (Result, error) {
	resultURL, err := a.postArticle(ctx, params)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, err
	}
	return Result{Success: true, Message: "posted", URL: resultURL}, nil
}

func (a *Automaton) postArticle(ctx context.Context, params PostParams) (string, error) {
	key := params.Destination
	if key == "" {
		key = "forum"
	}
	profile, ok := a.profiles[key]
	if !ok {
		return "", stepErr(StepInit, ErrUnknownDestination, nil, "unknown destination %q", key)
	}
	r := &run{a: a, params: params, profile: profile}

	var cookies []Cookie
	if params.LoginID != "" {
		if a.cookies == nil {
			return "", stepErr(StepAuthenticate, ErrLoginRequired, nil, "login required")
		}
		var err error
		cookies, err = a.cookies.Load(ctx, params.LoginID)
		if err != nil {
			if errors.Is(err, ErrLoginRequired) {
				return "", stepErr(StepAuthenticate, ErrLoginRequired, nil, "login required")
			}
			return "", stepErr(StepAuthenticate, ErrLoginRequired, err, "login required: %v", err)
		}
	}

	r.progress("launching browser")
	session, err := a.launcher.Launch(ctx, LaunchOptions{
		Headless: params.Headless,
		Locale:   a.opts.Locale,
		Bin:      a.opts.BrowserBin,
		Cookies:  cookies,
	})
	if err != nil {
		return "", stepErr(StepInit, ErrLaunch, err, "browser launch failed: %v", err)
	}
	r.session = session
	defer r.teardown()

	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) (string, error) {
	if r.params.LoginID != "" {
		if err := r.authenticate(ctx); err != nil {
			return "", err
		}
	}
	if err := r.navigateToEntryPoint(ctx); err != nil {
		return "", err
	}
	if err := r.fillForm(ctx); err != nil {
		return "", err
	}
	if len(r.params.ImagePaths) > 0 {
		if err := r.uploadAssets(ctx); err != nil {
			return "", err
		}
	}
	outcome, err := r.solveAndSubmit(ctx)
	if err != nil {
		return "", err
	}
	if err := r.verifyLanding(ctx, outcome); err != nil {
		return "", err
	}
	return r.extractResultURL(ctx), nil
}

func (r *run) progress(msg string) {
	if r.params.Progress != nil {
		r.params.Progress(msg)
	}
}

func (r *run) teardown() {
	if err := r.session.Close(); err != nil {
		r.a.logger.Warn("failed to close browser session", "error", err)
	}
}

func (r *run) authenticate(ctx context.Context) error {
	r.progress("checking saved login")
	if err := r.navigate(ctx, r.params.TargetURL); err != nil {
		return stepErr(StepAuthenticate, ErrLoginRequired, err, "login required: %v", err)
	}
	if r.profile.LoggedInMarker == "" {
		return nil
	}
	if err := waitFor(ctx, r.session, r.profile.LoggedInMarker, r.a.opts.ControlTimeout); err != nil {
		return stepErr(StepAuthenticate, ErrLoginRequired, nil, "login required")
	}
	return nil
}

func (r *run) navigateToEntryPoint(ctx context.Context) error {
	opts := r.a.opts
	var lastErr error
	for attempt := 1; attempt <= opts.NavMaxAttempts; attempt++ {
		r.progress(fmt.Sprintf("opening write page (attempt %d/%d)", attempt, opts.NavMaxAttempts))
		lastErr = r.tryEntryPoint(ctx)
		if lastErr == nil {
			return nil
		}
		r.a.logger.Warn("write page not reached", "attempt", attempt, "error", lastErr)
		if attempt < opts.NavMaxAttempts {
			if err := r.a.sleep(ctx, opts.NavBackoff*time.Duration(attempt)); err != nil {
				return stepErr(StepNavigate, ErrWritePageUnreachable, err, "could not reach write page")
			}
		}
	}
	return stepErr(StepNavigate, ErrWritePageUnreachable, lastErr, "could not reach write page")
}

func (r *run) tryEntryPoint(ctx context.Context) error {
	s, p, opts := r.session, r.profile, r.a.opts
	if err := r.navigate(ctx, r.params.TargetURL); err != nil {
		return err
	}
	if err := waitFor(ctx, s, p.WriteButton, opts.ControlTimeout); err != nil {
		return err
	}
	err := within(ctx, opts.ControlTimeout, func(ctx context.Context) error {
		return s.Click(ctx, p.WriteButton)
	})
	if err != nil {
		return err
	}
	return r.pollUntil(ctx, opts.ControlTimeout, func(ctx context.Context) (bool, error) {
		u, err := s.URL(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(u, p.WriteURLPattern), nil
	})
}

func (r *run) fillForm(ctx context.Context) error {
	s, p, timeout := r.session, r.profile, r.a.opts.ControlTimeout
	r.progress("filling form")

	if err := r.fill(ctx, "title", p.TitleInput, r.params.Title, timeout); err != nil {
		return err
	}
	if r.params.LoginID == "" {
		if r.params.Nickname != "" && p.NicknameInput != "" {
			if err := r.fill(ctx, "nickname", p.NicknameInput, r.params.Nickname, timeout); err != nil {
				return err
			}
		}
		if r.params.Password != "" && p.PasswordInput != "" {
			if err := r.fill(ctx, "password", p.PasswordInput, r.params.Password, timeout); err != nil {
				return err
			}
		}
	}
	if r.params.Headtext != "" && p.HeadtextOption != "" {
		sel := fmt.Sprintf(p.HeadtextOption, r.params.Headtext)
		if err := r.click(ctx, "headtext "+r.params.Headtext, sel, timeout); err != nil {
			return err
		}
	}

	// raw HTML goes in through the code view so the WYSIWYG editor does not sanitize it
	if p.HTMLModeToggle != "" {
		if err := r.click(ctx, "html mode toggle", p.HTMLModeToggle, timeout); err != nil {
			return err
		}
	}
	if err := r.fill(ctx, "content", p.ContentInput, r.params.ContentHTML, timeout); err != nil {
		return err
	}
	if p.HTMLModeToggle != "" {
		err := within(ctx, timeout, func(ctx context.Context) error {
			return s.Click(ctx, p.HTMLModeToggle)
		})
		if err != nil {
			return missingControl("html mode toggle", p.HTMLModeToggle, err)
		}
	}
	return nil
}

func (r *run) fill(ctx context.Context, name, selector, value string, timeout time.Duration) error {
	if err := waitFor(ctx, r.session, selector, timeout); err != nil {
		return missingControl(name, selector, err)
	}
	err := within(ctx, timeout, func(ctx context.Context) error {
		return r.session.Fill(ctx, selector, value)
	})
	if err != nil {
		return missingControl(name, selector, err)
	}
	return nil
}

func (r *run) click(ctx context.Context, name, selector string, timeout time.Duration) error {
	if err := waitFor(ctx, r.session, selector, timeout); err != nil {
		return missingControl(name, selector, err)
	}
	err := within(ctx, timeout, func(ctx context.Context) error {
		return r.session.Click(ctx, selector)
	})
	if err != nil {
		return missingControl(name, selector, err)
	}
	return nil
}

func missingControl(name, selector string, cause error) *StepError {
	return stepErr(StepFillForm, ErrControlMissing, cause, "missing form control: %s (%s)", name, selector)
}

func (r *run) uploadAssets(ctx context.Context) error {
	r.progress(fmt.Sprintf("uploading %d image(s)", len(r.params.ImagePaths)))
	err := r.upload(ctx)
	if err == nil {
		return nil
	}
	if r.a.opts.AssetPolicy == AssetPolicySkip {
		r.progress(fmt.Sprintf("continuing without images: %v", err))
		r.a.logger.Warn("asset upload skipped", "error", err)
		return nil
	}
	return stepErr(StepUploadAssets, ErrUploadFailed, err, "asset upload failed: %v", err)
}

func (r *run) upload(ctx context.Context) error {
	p, opts := r.profile, r.a.opts
	if p.UploadButton == "" {
		return errors.New("destination has no upload control")
	}
	var popup Popup
	err := within(ctx, opts.PopupTimeout, func(ctx context.Context) error {
		var err error
		popup, err = r.session.OpenPopup(ctx, p.UploadButton, opts.PopupTimeout)
		return err
	})
	if err != nil {
		return fmt.Errorf("upload window did not open: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = popup.Close()
		}
	}()

	if err := waitFor(ctx, popup, p.UploadFileInput, opts.PopupTimeout); err != nil {
		return fmt.Errorf("upload input not found: %w", err)
	}
	err = within(ctx, opts.PopupTimeout, func(ctx context.Context) error {
		return popup.SetFiles(ctx, p.UploadFileInput, r.params.ImagePaths)
	})
	if err != nil {
		return fmt.Errorf("set upload files: %w", err)
	}

	want := len(r.params.ImagePaths)
	err = r.pollEvery(ctx, opts.UploadTimeout, opts.UploadPollInterval, func(ctx context.Context) (bool, error) {
		n, err := popup.Count(ctx, p.UploadReadyMarker)
		if err != nil {
			return false, err
		}
		return n >= want, nil
	})
	if err != nil {
		return fmt.Errorf("uploads not ready: %w", err)
	}

	err = within(ctx, opts.ControlTimeout, func(ctx context.Context) error {
		return popup.Click(ctx, p.UploadApplyButton)
	})
	if err != nil {
		return fmt.Errorf("apply uploads: %w", err)
	}
	err = within(ctx, opts.PopupTimeout, func(ctx context.Context) error {
		return popup.WaitClosed(ctx, opts.PopupTimeout)
	})
	if err != nil {
		return fmt.Errorf("upload window did not close: %w", err)
	}
	closed = true
	return nil
}

func (r *run) solveAndSubmit(ctx context.Context) (SubmitOutcome, error) {
	s, p, opts := r.session, r.profile, r.a.opts
	failures := 0

	// retry consumes one attempt of the shared budget and backs off linearly
	retry := func(reason string) error {
		failures++
		r.progress(fmt.Sprintf("challenge attempt %d/%d failed: %s", failures, opts.ChallengeMaxAttempts, reason))
		if failures >= opts.ChallengeMaxAttempts {
			return stepErr(StepSubmit, ErrChallengeFailed, nil, "challenge solve failed after %d attempts", failures)
		}
		if err := r.a.sleep(ctx, opts.ChallengeBackoff*time.Duration(failures)); err != nil {
			return stepErr(StepSubmit, ErrChallengeFailed, err, "challenge solve failed after %d attempts", failures)
		}
		return nil
	}

	for {
		if p.ChallengeImage != "" {
			var present bool
			err := within(ctx, opts.ControlTimeout, func(ctx context.Context) error {
				var err error
				present, err = s.Has(ctx, p.ChallengeImage)
				return err
			})
			if err != nil {
				return SubmitOutcome{}, stepErr(StepSubmit, ErrControlMissing, err, "check challenge: %v", err)
			}
			if present {
				solved, err := r.solveChallenge(ctx)
				if err != nil {
					var se *StepError
					if errors.As(err, &se) {
						return SubmitOutcome{}, se
					}
					if rerr := retry(err.Error()); rerr != nil {
						return SubmitOutcome{}, rerr
					}
					continue
				}
				err = within(ctx, opts.ControlTimeout, func(ctx context.Context) error {
					return s.Fill(ctx, p.ChallengeInput, solved)
				})
				if err != nil {
					return SubmitOutcome{}, missingControl("challenge input", p.ChallengeInput, err)
				}
			}
		}

		r.progress("submitting")
		var outcome SubmitOutcome
		err := within(ctx, opts.SubmitTimeout, func(ctx context.Context) error {
			var err error
			outcome, err = s.Submit(ctx, p.SubmitButton, opts.SubmitTimeout)
			return err
		})
		if err != nil {
			return SubmitOutcome{}, missingControl("submit button", p.SubmitButton, err)
		}
		if !outcome.Dialog {
			return outcome, nil
		}
		if p.ChallengeErrorText == "" || !strings.Contains(outcome.Message, p.ChallengeErrorText) {
			return SubmitOutcome{}, stepErr(StepSubmit, ErrDialogRejected, nil, "%s", outcome.Message)
		}
		if rerr := retry(outcome.Message); rerr != nil {
			return SubmitOutcome{}, rerr
		}
		if p.ChallengeInput != "" {
			_ = within(ctx, opts.ControlTimeout, func(ctx context.Context) error {
				return s.Fill(ctx, p.ChallengeInput, "")
			})
		}
	}
}

func (r *run) solveChallenge(ctx context.Context) (string, error) {
	if r.a.solver == nil {
		return "", stepErr(StepSubmit, ErrChallengeFailed, nil, "challenge present but no solver configured")
	}
	var img []byte
	err := within(ctx, r.a.opts.ControlTimeout, func(ctx context.Context) error {
		var err error
		img, err = r.session.Screenshot(ctx, r.profile.ChallengeImage)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("capture challenge: %w", err)
	}
	answer, err := r.a.solver.Solve(ctx, img)
	if err != nil {
		return "", fmt.Errorf("solve challenge: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("solve challenge: empty answer")
	}
	return answer, nil
}

func (r *run) verifyLanding(ctx context.Context, outcome SubmitOutcome) error {
	s, p, opts := r.session, r.profile, r.a.opts
	r.progress("waiting for listing")
	err := r.pollEvery(ctx, opts.LandingTimeout, opts.LandingPoll, func(ctx context.Context) (bool, error) {
		u, err := s.URL(ctx)
		if err != nil {
			return false, err
		}
		if p.LandingURLPattern != "" && strings.Contains(u, p.LandingURLPattern) {
			return true, nil
		}
		if outcome.Navigated && !strings.Contains(u, p.WriteURLPattern) {
			return true, nil
		}
		if p.ListingMarker != "" {
			return s.Has(ctx, p.ListingMarker)
		}
		return false, nil
	})
	if err != nil {
		return stepErr(StepVerifyLanding, ErrPostNotConfirmed, err, "post did not complete")
	}
	return nil
}

// extractResultURL never fails: without a matching entry it falls back to
// the current page.
func (r *run) extractResultURL(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, r.a.opts.ControlTimeout)
	defer cancel()

	current, err := r.session.URL(ctx)
	if err != nil {
		r.a.logger.Warn("read current url", "error", err)
	}
	if r.profile.ListingLinks == "" {
		return current
	}
	links, err := r.session.Links(ctx, r.profile.ListingLinks)
	if err != nil {
		r.a.logger.Warn("scan listing", "error", err)
		return current
	}
	title := strings.TrimSpace(r.params.Title)
	for _, l := range links {
		if strings.TrimSpace(l.Text) != title || l.Href == "" {
			continue
		}
		return resolveURL(current, l.Href)
	}
	return current
}

func resolveURL(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return href
	}
	return b.ResolveReference(ref).String()
}

// pollUntil polls every 100ms.
func (r *run) pollUntil(ctx context.Context, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	return r.pollEvery(ctx, timeout, 100*time.Millisecond, cond)
}

// pollEvery calls cond until it reports true. The timeout bounds the whole
// poll, including a cond call that blocks.
func (r *run) pollEvery(ctx context.Context, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		ok, err := cond(pctx)
		if ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if pctx.Err() == nil && r.a.sleep(pctx, interval) == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr != nil {
			return fmt.Errorf("timed out after %s: %w", timeout, lastErr)
		}
		return fmt.Errorf("timed out after %s", timeout)
	}
}

func (r *run) navigate(ctx context.Context, url string) error {
	return within(ctx, r.a.opts.NavTimeout, func(ctx context.Context) error {
		return r.session.Navigate(ctx, url)
	})
}

func waitFor(ctx context.Context, pg Page, selector string, timeout time.Duration) error {
	return within(ctx, timeout, func(ctx context.Context) error {
		return pg.WaitFor(ctx, selector, timeout)
	})
}

// within runs one browser call under its own deadline.
func within(ctx context.Context, timeout time.Duration, call func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(cctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
