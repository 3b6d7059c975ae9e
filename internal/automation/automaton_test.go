package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	listURL  = "https://board.example.com/board/lists?id=cats"
	writeURL = "https://board.example.com/board/write?id=cats"
)

type fakePopup struct {
	present    map[string]bool
	ready      int
	closeOnApp bool
	files      []string
	closed     int
}

func (p *fakePopup) Navigate(context.Context, string) error { return nil }
func (p *fakePopup) URL(context.Context) (string, error)    { return "about:blank", nil }
func (p *fakePopup) Has(_ context.Context, sel string) (bool, error) {
	return p.present[sel], nil
}
func (p *fakePopup) WaitFor(_ context.Context, sel string, _ time.Duration) error {
	if !p.present[sel] {
		return fmt.Errorf("%s not found", sel)
	}
	return nil
}
func (p *fakePopup) Count(context.Context, string) (int, error) { return p.ready, nil }
func (p *fakePopup) Click(context.Context, string) error        { return nil }
func (p *fakePopup) Fill(context.Context, string, string) error { return nil }
func (p *fakePopup) SetFiles(_ context.Context, _ string, paths []string) error {
	p.files = paths
	return nil
}
func (p *fakePopup) Screenshot(context.Context, string) ([]byte, error) { return nil, nil }
func (p *fakePopup) Links(context.Context, string) ([]Link, error)      { return nil, nil }
func (p *fakePopup) WaitClosed(context.Context, time.Duration) error {
	if !p.closeOnApp {
		return errors.New("still open")
	}
	return nil
}
func (p *fakePopup) Close() error {
	p.closed++
	return nil
}

type fakeSession struct {
	mu sync.Mutex

	profile       Profile
	url           string
	missing       map[string]bool
	writeFailures int
	navigations   int
	challenge     bool
	values        map[string]string
	clicks        []string
	submits       []SubmitOutcome
	submitCount   int
	landing       string
	links         []Link
	popup         *fakePopup
	closeCount    int

	// stall* make the matching call block until its context ends
	stallNavigate bool
	stallLanding  bool
}

func newFakeSession(p Profile) *fakeSession {
	return &fakeSession{
		profile: p,
		missing: map[string]bool{},
		values:  map[string]string{},
		landing: listURL,
		popup: &fakePopup{
			present:    map[string]bool{p.UploadFileInput: true},
			closeOnApp: true,
		},
	}
}

func (s *fakeSession) Navigate(ctx context.Context, u string) error {
	s.navigations++
	if s.stallNavigate {
		<-ctx.Done()
		return ctx.Err()
	}
	s.url = u
	return nil
}

func (s *fakeSession) URL(ctx context.Context) (string, error) {
	if s.stallLanding && s.submitCount > 0 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.url, nil
}

func (s *fakeSession) Has(_ context.Context, sel string) (bool, error) {
	if sel == s.profile.ChallengeImage {
		return s.challenge, nil
	}
	if sel == s.profile.ListingMarker {
		return s.url == s.landing, nil
	}
	return !s.missing[sel], nil
}

func (s *fakeSession) WaitFor(_ context.Context, sel string, _ time.Duration) error {
	if s.missing[sel] {
		return fmt.Errorf("%s not found", sel)
	}
	return nil
}

func (s *fakeSession) Count(context.Context, string) (int, error) { return 0, nil }

func (s *fakeSession) Click(_ context.Context, sel string) error {
	if s.missing[sel] {
		return fmt.Errorf("%s not found", sel)
	}
	s.clicks = append(s.clicks, sel)
	if sel == s.profile.WriteButton {
		if s.writeFailures > 0 {
			s.writeFailures--
			return nil
		}
		s.url = writeURL
	}
	return nil
}

func (s *fakeSession) Fill(_ context.Context, sel, value string) error {
	if s.missing[sel] {
		return fmt.Errorf("%s not found", sel)
	}
	s.values[sel] = value
	return nil
}

func (s *fakeSession) SetFiles(context.Context, string, []string) error { return nil }

func (s *fakeSession) Screenshot(context.Context, string) ([]byte, error) {
	return []byte("png"), nil
}

func (s *fakeSession) Links(context.Context, string) ([]Link, error) { return s.links, nil }

func (s *fakeSession) OpenPopup(context.Context, string, time.Duration) (Popup, error) {
	return s.popup, nil
}

func (s *fakeSession) Submit(context.Context, string, time.Duration) (SubmitOutcome, error) {
	i := s.submitCount
	s.submitCount++
	if i < len(s.submits) {
		return s.submits[i], nil
	}
	s.url = s.landing
	return SubmitOutcome{Navigated: true}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

type fakeLauncher struct {
	session *fakeSession
	err     error
	calls   int
	opts    LaunchOptions
}

func (l *fakeLauncher) Launch(_ context.Context, opts LaunchOptions) (Session, error) {
	l.calls++
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type fakeSolver struct {
	answers []string
	errs    []error
	calls   int
}

func (f *fakeSolver) Solve(context.Context, []byte) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return "1234", nil
}

type fakeCookies struct {
	cookies []Cookie
	err     error
}

func (f fakeCookies) Load(context.Context, string) ([]Cookie, error) {
	return f.cookies, f.err
}

func testOptions() Options {
	return Options{
		NavMaxAttempts:       3,
		ChallengeMaxAttempts: 3,
		NavTimeout:           20 * time.Millisecond,
		ControlTimeout:       20 * time.Millisecond,
		PopupTimeout:         20 * time.Millisecond,
		UploadTimeout:        20 * time.Millisecond,
		UploadPollInterval:   time.Millisecond,
		SubmitTimeout:        20 * time.Millisecond,
		LandingTimeout:       20 * time.Millisecond,
		LandingPoll:          time.Millisecond,
		AssetPolicy:          AssetPolicyFail,
	}
}

func newTestAutomaton(l Launcher, cookies CookieStore, solver ChallengeSolver, opts Options) (*Automaton, *[]time.Duration) {
	a := New(l, cookies, solver, map[string]Profile{"forum": DefaultForumProfile()}, opts,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	var sleeps []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return a, &sleeps
}

func baseParams() PostParams {
	return PostParams{
		TargetURL:   listURL,
		Title:       "hello world",
		ContentHTML: "<p><b>hi</b></p>",
		Nickname:    "writer",
		Password:    "1234",
	}
}

func TestPostArticleHappyPath(t *testing.T) {
	p := DefaultForumProfile()
	sess := newFakeSession(p)
	sess.links = []Link{
		{Text: "other post", Href: "/board/view?id=cats&no=1"},
		{Text: " hello world ", Href: "/board/view?id=cats&no=2"},
	}
	launcher := &fakeLauncher{session: sess}
	a, _ := newTestAutomaton(launcher, nil, nil, testOptions())

	var progress []string
	params := baseParams()
	params.Headless = true
	params.Progress = func(msg string) { progress = append(progress, msg) }

	res, err := a.PostArticle(context.Background(), params)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !res.Success || res.URL != "https://board.example.com/board/view?id=cats&no=2" {
		t.Fatalf("unexpected result %+v", res)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
	if !launcher.opts.Headless || launcher.opts.Locale != "ko-KR" {
		t.Fatalf("unexpected launch options %+v", launcher.opts)
	}
	if sess.values[p.TitleInput] != "hello world" || sess.values[p.ContentInput] != "<p><b>hi</b></p>" {
		t.Fatalf("form not filled: %v", sess.values)
	}
	toggles := 0
	for _, c := range sess.clicks {
		if c == p.HTMLModeToggle {
			toggles++
		}
	}
	if toggles != 2 {
		t.Fatalf("expected html mode toggled on and off, got %d clicks", toggles)
	}
	if len(progress) == 0 {
		t.Fatalf("expected progress callbacks")
	}
}

func TestChallengeDialogRetriesUpToCeiling(t *testing.T) {
	p := DefaultForumProfile()
	sess := newFakeSession(p)
	sess.challenge = true
	bad := SubmitOutcome{Dialog: true, Message: "자동입력 방지코드가 일치하지 않습니다."}
	sess.submits = []SubmitOutcome{bad, bad, bad, bad}
	solver := &fakeSolver{}
	a, sleeps := newTestAutomaton(&fakeLauncher{session: sess}, nil, solver, testOptions())

	res, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrChallengeFailed) {
		t.Fatalf("expected ErrChallengeFailed, got %v", err)
	}
	if err.Error() != "challenge solve failed after 3 attempts" || res.Message != err.Error() || res.Success {
		t.Fatalf("unexpected message %q / %+v", err.Error(), res)
	}
	if sess.submitCount != 3 || solver.calls != 3 {
		t.Fatalf("expected 3 submits and solves, got %d and %d", sess.submitCount, solver.calls)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Step != StepSubmit {
		t.Fatalf("expected StepError at submit, got %#v", err)
	}
	// linear backoff between attempts, none after the last
	if len(*sleeps) < 2 {
		t.Fatalf("expected backoff sleeps, got %v", *sleeps)
	}
}

func TestChallengeDialogThenSuccess(t *testing.T) {
	p := DefaultForumProfile()
	sess := newFakeSession(p)
	sess.challenge = true
	sess.submits = []SubmitOutcome{{Dialog: true, Message: "자동입력 방지코드를 다시 입력해주세요"}}
	solver := &fakeSolver{answers: []string{"1111", "2222"}}
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, solver, testOptions())

	res, err := a.PostArticle(context.Background(), baseParams())
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !res.Success || sess.submitCount != 2 || solver.calls != 2 {
		t.Fatalf("unexpected result %+v submits=%d solves=%d", res, sess.submitCount, solver.calls)
	}
	if sess.values[p.ChallengeInput] != "2222" {
		t.Fatalf("expected second answer submitted, got %q", sess.values[p.ChallengeInput])
	}
}

func TestSolverFailuresShareBudget(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.challenge = true
	solver := &fakeSolver{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, solver, testOptions())

	_, err := a.PostArticle(context.Background(), baseParams())
	if err == nil || err.Error() != "challenge solve failed after 3 attempts" {
		t.Fatalf("unexpected error %v", err)
	}
	if sess.submitCount != 0 {
		t.Fatalf("nothing should be submitted without an answer")
	}
}

func TestOtherDialogFailsImmediately(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.submits = []SubmitOutcome{{Dialog: true, Message: "접근이 차단되었습니다."}}
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, &fakeSolver{}, testOptions())

	_, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrDialogRejected) || err.Error() != "접근이 차단되었습니다." {
		t.Fatalf("expected verbatim dialog error, got %v", err)
	}
	if sess.submitCount != 1 {
		t.Fatalf("expected a single submit, got %d", sess.submitCount)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

func TestUploadTimeoutPolicy(t *testing.T) {
	params := baseParams()
	params.ImagePaths = []string{"/tmp/a.png", "/tmp/b.png"}

	t.Run("skip", func(t *testing.T) {
		sess := newFakeSession(DefaultForumProfile())
		sess.popup.ready = 1
		opts := testOptions()
		opts.AssetPolicy = AssetPolicySkip
		a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, opts)

		res, err := a.PostArticle(context.Background(), params)
		if err != nil || !res.Success {
			t.Fatalf("expected success without assets, got %+v %v", res, err)
		}
		if sess.submitCount != 1 {
			t.Fatalf("expected submission, got %d", sess.submitCount)
		}
		if sess.popup.closed != 1 {
			t.Fatalf("expected abandoned popup closed")
		}
		if sess.closeCount != 1 {
			t.Fatalf("expected session closed once, got %d", sess.closeCount)
		}
	})

	t.Run("fail", func(t *testing.T) {
		sess := newFakeSession(DefaultForumProfile())
		sess.popup.ready = 1
		a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

		res, err := a.PostArticle(context.Background(), params)
		if !errors.Is(err, ErrUploadFailed) || res.Success {
			t.Fatalf("expected ErrUploadFailed, got %+v %v", res, err)
		}
		if !strings.HasPrefix(err.Error(), "asset upload failed") {
			t.Fatalf("unexpected message %q", err.Error())
		}
		if sess.submitCount != 0 {
			t.Fatalf("nothing should be submitted")
		}
		if sess.closeCount != 1 {
			t.Fatalf("expected session closed once, got %d", sess.closeCount)
		}
	})

	t.Run("ready", func(t *testing.T) {
		sess := newFakeSession(DefaultForumProfile())
		sess.popup.ready = 2
		a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

		if _, err := a.PostArticle(context.Background(), params); err != nil {
			t.Fatalf("post: %v", err)
		}
		if len(sess.popup.files) != 2 || sess.popup.closed != 0 {
			t.Fatalf("unexpected popup state %+v", sess.popup)
		}
	})
}

func TestWritePageUnreachable(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.writeFailures = 10
	opts := testOptions()
	opts.NavBackoff = time.Second
	a, sleeps := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, opts)

	_, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrWritePageUnreachable) || err.Error() != "could not reach write page" {
		t.Fatalf("unexpected error %v", err)
	}
	if sess.navigations != 3 {
		t.Fatalf("expected 3 attempts, got %d", sess.navigations)
	}
	var backoffs []time.Duration
	for _, d := range *sleeps {
		if d >= time.Second {
			backoffs = append(backoffs, d)
		}
	}
	if len(backoffs) != 2 || backoffs[0] != time.Second || backoffs[1] != 2*time.Second {
		t.Fatalf("expected linear backoff [1s 2s], got %v", backoffs)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

func TestStalledNavigationIsBounded(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.stallNavigate = true
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

	_, err := postWithin(t, a, baseParams(), 2*time.Second)
	if !errors.Is(err, ErrWritePageUnreachable) {
		t.Fatalf("expected ErrWritePageUnreachable, got %v", err)
	}
	if sess.navigations != 3 {
		t.Fatalf("expected 3 attempts, got %d", sess.navigations)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

func TestStalledLandingCheckIsBounded(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.stallLanding = true
	sess.submits = []SubmitOutcome{{Navigated: true}}
	opts := testOptions()
	opts.LandingTimeout = 50 * time.Millisecond
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, opts)

	res, err := postWithin(t, a, baseParams(), 2*time.Second)
	if !errors.Is(err, ErrPostNotConfirmed) || res.Success {
		t.Fatalf("expected ErrPostNotConfirmed, got %+v %v", res, err)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

// postWithin fails the test when PostArticle has not returned after limit.
func postWithin(t *testing.T, a *Automaton, params PostParams, limit time.Duration) (Result, error) {
	t.Helper()
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.PostArticle(context.Background(), params)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(limit):
		t.Fatalf("PostArticle still running after %s", limit)
		return Result{}, nil
	}
}

func TestWritePageReachedOnRetry(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.writeFailures = 1
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

	if _, err := a.PostArticle(context.Background(), baseParams()); err != nil {
		t.Fatalf("post: %v", err)
	}
	if sess.navigations != 2 {
		t.Fatalf("expected 2 attempts, got %d", sess.navigations)
	}
}

func TestMissingControlIsFatal(t *testing.T) {
	p := DefaultForumProfile()
	sess := newFakeSession(p)
	sess.missing[p.TitleInput] = true
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

	_, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrControlMissing) || !strings.Contains(err.Error(), p.TitleInput) {
		t.Fatalf("unexpected error %v", err)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

func TestLoginRequired(t *testing.T) {
	params := baseParams()
	params.LoginID = "alice"

	t.Run("no saved cookies", func(t *testing.T) {
		launcher := &fakeLauncher{session: newFakeSession(DefaultForumProfile())}
		a, _ := newTestAutomaton(launcher, fakeCookies{err: ErrLoginRequired}, nil, testOptions())

		_, err := a.PostArticle(context.Background(), params)
		if !errors.Is(err, ErrLoginRequired) || err.Error() != "login required" {
			t.Fatalf("unexpected error %v", err)
		}
		if launcher.calls != 0 {
			t.Fatalf("browser must not launch without a session")
		}
	})

	t.Run("marker absent", func(t *testing.T) {
		p := DefaultForumProfile()
		sess := newFakeSession(p)
		sess.missing[p.LoggedInMarker] = true
		launcher := &fakeLauncher{session: sess}
		cookies := fakeCookies{cookies: []Cookie{{Name: "sid", Value: "x"}}}
		a, _ := newTestAutomaton(launcher, cookies, nil, testOptions())

		_, err := a.PostArticle(context.Background(), params)
		if !errors.Is(err, ErrLoginRequired) {
			t.Fatalf("unexpected error %v", err)
		}
		if len(launcher.opts.Cookies) != 1 {
			t.Fatalf("cookies not restored at launch")
		}
		if sess.closeCount != 1 {
			t.Fatalf("expected session closed once, got %d", sess.closeCount)
		}
	})

	t.Run("logged in", func(t *testing.T) {
		p := DefaultForumProfile()
		sess := newFakeSession(p)
		sess.missing[p.NicknameInput] = true
		cookies := fakeCookies{cookies: []Cookie{{Name: "sid", Value: "x"}}}
		a, _ := newTestAutomaton(&fakeLauncher{session: sess}, cookies, nil, testOptions())

		if _, err := a.PostArticle(context.Background(), params); err != nil {
			t.Fatalf("logged-in post must not need the guest nickname field: %v", err)
		}
	})
}

func TestLandingNotObserved(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.submits = []SubmitOutcome{{}}
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

	_, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrPostNotConfirmed) || err.Error() != "post did not complete" {
		t.Fatalf("unexpected error %v", err)
	}
	if sess.closeCount != 1 {
		t.Fatalf("expected session closed once, got %d", sess.closeCount)
	}
}

func TestResultURLFallsBackToCurrentPage(t *testing.T) {
	sess := newFakeSession(DefaultForumProfile())
	sess.links = []Link{{Text: "someone else", Href: "/board/view?no=9"}}
	a, _ := newTestAutomaton(&fakeLauncher{session: sess}, nil, nil, testOptions())

	res, err := a.PostArticle(context.Background(), baseParams())
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.URL != listURL {
		t.Fatalf("expected fallback to %s, got %s", listURL, res.URL)
	}
}

func TestLaunchFailure(t *testing.T) {
	a, _ := newTestAutomaton(&fakeLauncher{err: errors.New("no chrome")}, nil, nil, testOptions())
	_, err := a.PostArticle(context.Background(), baseParams())
	if !errors.Is(err, ErrLaunch) || err.Error() != "browser launch failed: no chrome" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUnknownDestination(t *testing.T) {
	a, _ := newTestAutomaton(&fakeLauncher{}, nil, nil, testOptions())
	params := baseParams()
	params.Destination = "nowhere"
	if _, err := a.PostArticle(context.Background(), params); !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFileCookieStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCookieStore(dir)
	store.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	if _, err := store.Load(context.Background(), "bob"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}

	data := `[
		{"name":"sid","value":"live","domain":".example.com","path":"/","expires":"2030-01-01T00:00:00Z"},
		{"name":"old","value":"gone","domain":".example.com","path":"/","expires":"2020-01-01T00:00:00Z"},
		{"name":"session","value":"s","domain":".example.com","path":"/"}
	]`
	if err := os.WriteFile(filepath.Join(dir, "bob.json"), []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cookies, err := store.Load(context.Background(), "bob")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cookies) != 2 || cookies[0].Name != "sid" || cookies[1].Name != "session" {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if got := store.Path("a/b"); filepath.Base(got) != "a_b.json" {
		t.Fatalf("unexpected path %s", got)
	}
}

func TestProfileMergeAndValidate(t *testing.T) {
	p := Profile{TitleInput: "#t"}.Merge(DefaultForumProfile())
	if p.TitleInput != "#t" || p.SubmitButton != DefaultForumProfile().SubmitButton {
		t.Fatalf("unexpected merge %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bare := Profile{TitleInput: "#t"}.Merge(DefaultForumProfile(), "html_mode_toggle", "upload_button")
	if bare.HTMLModeToggle != "" || bare.UploadButton != "" || bare.TitleInput != "#t" {
		t.Fatalf("explicit empty selectors must stay empty: %+v", bare)
	}
	if bare.LoggedInMarker != DefaultForumProfile().LoggedInMarker {
		t.Fatalf("unnamed selectors must still inherit: %+v", bare)
	}
	if err := (Profile{}).Validate(); err == nil {
		t.Fatalf("empty profile must not validate")
	}
}
