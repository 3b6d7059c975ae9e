package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DestinationForum is the default destination profile key for board-style sites.
const DestinationForum = "forum"

// StringList is a string slice persisted as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// PostJob is a destination-scoped post scheduled for browser publishing.
// It shares the pending/processing/completed/failed vocabulary with Job.
type PostJob struct {
	ID            string     `json:"id" db:"id"`
	Destination   string     `json:"destination" db:"destination"`
	TargetURL     string     `json:"target_url" db:"target_url"`
	Title         string     `json:"title" db:"title"`
	ContentHTML   string     `json:"content_html" db:"content_html"`
	Nickname      *string    `json:"nickname,omitempty" db:"nickname"`
	Password      *string    `json:"-" db:"password"`
	Headtext      *string    `json:"headtext,omitempty" db:"headtext"`
	ImagePaths    StringList `json:"image_paths" db:"image_paths"`
	LoginID       *string    `json:"login_id,omitempty" db:"login_id"`
	LoginPassword *string    `json:"-" db:"login_password"`
	Status        JobStatus  `json:"status" db:"status"`
	Priority      int        `json:"priority" db:"priority"`
	ScheduledAt   time.Time  `json:"scheduled_at" db:"scheduled_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ResultURL     *string    `json:"result_url,omitempty" db:"result_url"`
	ResultMsg     *string    `json:"result_msg,omitempty" db:"result_msg"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
