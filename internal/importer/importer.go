// Package importer turns XLSX sheets into scheduled forum post jobs.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/service"
)

// Columns recognised in the header row. Matching is case-insensitive.
const (
	ColTitle         = "title"
	ColContent       = "content"
	ColTargetURL     = "target_url"
	ColNickname      = "nickname"
	ColPassword      = "password"
	ColHeadtext      = "headtext"
	ColImages        = "images"
	ColLoginID       = "login_id"
	ColLoginPassword = "login_password"
	ColScheduledAt   = "scheduled_at"
	ColPriority      = "priority"
)

// localLayout is accepted in addition to RFC 3339 and read in the importer's location.
const localLayout = "2006-01-02 15:04"

var required = []string{ColTitle, ColContent, ColTargetURL}

// Row is one parsed sheet row. Line is the 1-based spreadsheet row number.
type Row struct {
	Line  int
	Input service.CreatePostInput
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report summarises one import. Valid rows are created even when others fail.
type Report struct {
	Created []string   `json:"created"`
	Errors  []RowError `json:"errors"`
}

// Creator stores a validated post.
type Creator interface {
	Create(ctx context.Context, in service.CreatePostInput) (*domain.PostJob, error)
}

type Importer struct {
	posts    Creator
	location *time.Location
	logger   *slog.Logger
}

// New creates an Importer. Local timestamps are interpreted in loc (UTC when nil).
func New(posts Creator, loc *time.Location, logger *slog.Logger) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{posts: posts, location: loc, logger: logger}
}

// Import parses r and creates a pending post job for every valid row.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	rows, rowErrs, err := Parse(r, im.location)
	if err != nil {
		return Report{}, err
	}
	report := Report{Created: []string{}, Errors: rowErrs}
	for _, row := range rows {
		job, err := im.posts.Create(ctx, row.Input)
		if err != nil {
			var verr *domain.ValidationError
			if !errors.As(err, &verr) && !errors.Is(err, domain.ErrInvalidInput) {
				return report, fmt.Errorf("row %d: %w", row.Line, err)
			}
			report.Errors = append(report.Errors, RowError{Row: row.Line, Message: err.Error()})
			continue
		}
		report.Created = append(report.Created, job.ID)
	}
	im.logger.Info("xlsx import finished", "created", len(report.Created), "rejected", len(report.Errors))
	return report, nil
}

// ImportFile imports the workbook at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Parse reads the first sheet of an XLSX workbook. Rows that cannot be
// decoded are reported in the returned errors and left out of rows.
func Parse(r io.Reader, loc *time.Location) ([]Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read workbook: %v", domain.ErrInvalidInput, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidInput)
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet %s is empty", domain.ErrInvalidInput, sheet)
	}

	index := make(map[string]int, len(all[0]))
	for i, h := range all[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidInput, col)
		}
	}

	var (
		rows []Row
		errs []RowError
	)
	for i, cells := range all[1:] {
		line := i + 2
		get := func(col string) string {
			idx, ok := index[col]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if blank(cells) {
			continue
		}

		in := service.CreatePostInput{
			TargetURL:     get(ColTargetURL),
			Title:         get(ColTitle),
			ContentHTML:   get(ColContent),
			Nickname:      get(ColNickname),
			Password:      get(ColPassword),
			Headtext:      get(ColHeadtext),
			ImagePaths:    splitList(get(ColImages)),
			LoginID:       get(ColLoginID),
			LoginPassword: get(ColLoginPassword),
		}
		if v := get(ColPriority); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, RowError{Row: line, Message: fmt.Sprintf("priority %q is not a number", v)})
				continue
			}
			in.Priority = p
		}
		if v := get(ColScheduledAt); v != "" {
			at, err := parseTime(v, loc)
			if err != nil {
				errs = append(errs, RowError{Row: line, Message: err.Error()})
				continue
			}
			in.ScheduledAt = &at
		}
		rows = append(rows, Row{Line: line, Input: in})
	}
	return rows, errs, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(localLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled_at %q: want RFC3339 or %q", v, localLayout)
	}
	return t.UTC(), nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
