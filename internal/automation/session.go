package automation

import (
	"context"
	"time"
)

// Cookie is one saved authentication cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly"`
	Secure   bool      `json:"secure"`
}

// LaunchOptions configures a new browser session.
type LaunchOptions struct {
	Headless bool
	Locale   string
	Bin      string
	Cookies  []Cookie
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Link is an anchor found on a page.
type Link struct {
	Text string
	Href string
}

// Page is the set of element operations the automaton needs. Selectors are
// CSS selectors.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Has(ctx context.Context, selector string) (bool, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SetFiles(ctx context.Context, selector string, paths []string) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Links(ctx context.Context, selector string) ([]Link, error)
}

// Popup is a secondary window opened by the page.
type Popup interface {
	Page
	WaitClosed(ctx context.Context, timeout time.Duration) error
	Close() error
}

// SubmitOutcome reports what followed a submit click. Dialog is set when a
// JavaScript dialog appeared before navigation finished; it has already
// been accepted.
type SubmitOutcome struct {
	Dialog    bool
	Message   string
	Navigated bool
}

// Session is one browser context, exclusively owned by a single run.
type Session interface {
	Page
	// OpenPopup clicks selector and waits for the window it opens.
	OpenPopup(ctx context.Context, selector string, timeout time.Duration) (Popup, error)
	// Submit clicks selector and races a dialog against navigation.
	Submit(ctx context.Context, selector string, timeout time.Duration) (SubmitOutcome, error)
	Close() error
}

// ChallengeSolver turns a challenge image into its answer.
type ChallengeSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// CookieStore loads saved cookie sets. It returns ErrLoginRequired when no
// set exists for loginID.
type CookieStore interface {
	Load(ctx context.Context, loginID string) ([]Cookie, error)
}
