package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileCookieStore reads cookie sets saved by the login flow as
// <dir>/<loginID>.json. It never writes.
type FileCookieStore struct {
	dir string
	now func() time.Time
}

func NewFileCookieStore(dir string) *FileCookieStore {
	return &FileCookieStore{dir: dir, now: time.Now}
}

func (s *FileCookieStore) Path(loginID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, loginID)
	return filepath.Join(s.dir, name+".json")
}

// Load returns the unexpired cookies saved for loginID.
func (s *FileCookieStore) Load(_ context.Context, loginID string) ([]Cookie, error) {
	if s.dir == "" {
		return nil, ErrLoginRequired
	}
	raw, err := os.ReadFile(s.Path(loginID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrLoginRequired
		}
		return nil, fmt.Errorf("read cookies for %s: %w", loginID, err)
	}

	var all []Cookie
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode cookies for %s: %w", loginID, err)
	}
	now := s.now()
	live := all[:0]
	for _, c := range all {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		live = append(live, c)
	}
	if len(live) == 0 {
		return nil, ErrLoginRequired
	}
	return live, nil
}
