package automation

import (
	"fmt"
	"time"
)

// Profile is the UI contract of one destination site.
type Profile struct {
	LoggedInMarker string `yaml:"logged_in_marker"`

	WriteButton     string `yaml:"write_button"`
	WriteURLPattern string `yaml:"write_url_pattern"`

	TitleInput     string `yaml:"title_input"`
	NicknameInput  string `yaml:"nickname_input"`
	PasswordInput  string `yaml:"password_input"`
	HeadtextOption string `yaml:"headtext_option"` // fmt template, %s is the headtext
	HTMLModeToggle string `yaml:"html_mode_toggle"`
	ContentInput   string `yaml:"content_input"`

	UploadButton      string `yaml:"upload_button"`
	UploadFileInput   string `yaml:"upload_file_input"`
	UploadReadyMarker string `yaml:"upload_ready_marker"`
	UploadApplyButton string `yaml:"upload_apply_button"`

	ChallengeImage     string `yaml:"challenge_image"`
	ChallengeInput     string `yaml:"challenge_input"`
	ChallengeErrorText string `yaml:"challenge_error_text"`
	SubmitButton       string `yaml:"submit_button"`

	LandingURLPattern string `yaml:"landing_url_pattern"`
	ListingMarker     string `yaml:"listing_marker"`
	ListingLinks      string `yaml:"listing_links"`
}

// DefaultForumProfile describes a board-style site with a gallery listing,
// a separate compose page and an image upload popup.
func DefaultForumProfile() Profile {
	return Profile{
		LoggedInMarker:     ".user_info .nickname",
		WriteButton:        "a.btn_write",
		WriteURLPattern:    "/board/write",
		TitleInput:         "input#subject",
		NicknameInput:      "input#name",
		PasswordInput:      "input#password",
		HeadtextOption:     `ul.subject_list li[data-val="%s"]`,
		HTMLModeToggle:     "button.btn_html",
		ContentInput:       "textarea.note-codable",
		UploadButton:       "button.btn_image",
		UploadFileInput:    "input[type=file]",
		UploadReadyMarker:  "li.img_item.complete",
		UploadApplyButton:  "button.btn_apply",
		ChallengeImage:     "img#kcaptcha",
		ChallengeInput:     "input#code",
		ChallengeErrorText: "자동입력 방지코드",
		SubmitButton:       "button.btn_svc.write",
		LandingURLPattern:  "/board/lists",
		ListingMarker:      "table.gall_list",
		ListingLinks:       "table.gall_list td.gall_tit > a:first-child",
	}
}

// Merge returns p with every empty field taken from base. Fields named in
// explicit, by their yaml key, are kept as they are even when empty, which
// is how a destination switches off an optional control of its base.
func (p Profile) Merge(base Profile, explicit ...string) Profile {
	keep := make(map[string]bool, len(explicit))
	for _, k := range explicit {
		keep[k] = true
	}
	dst, src := p.selectors(), base.selectors()
	for i, f := range dst {
		if *f.value == "" && !keep[f.key] {
			*f.value = *src[i].value
		}
	}
	return p
}

type selectorField struct {
	key   string
	value *string
}

func (p *Profile) selectors() []selectorField {
	return []selectorField{
		{"logged_in_marker", &p.LoggedInMarker},
		{"write_button", &p.WriteButton},
		{"write_url_pattern", &p.WriteURLPattern},
		{"title_input", &p.TitleInput},
		{"nickname_input", &p.NicknameInput},
		{"password_input", &p.PasswordInput},
		{"headtext_option", &p.HeadtextOption},
		{"html_mode_toggle", &p.HTMLModeToggle},
		{"content_input", &p.ContentInput},
		{"upload_button", &p.UploadButton},
		{"upload_file_input", &p.UploadFileInput},
		{"upload_ready_marker", &p.UploadReadyMarker},
		{"upload_apply_button", &p.UploadApplyButton},
		{"challenge_image", &p.ChallengeImage},
		{"challenge_input", &p.ChallengeInput},
		{"challenge_error_text", &p.ChallengeErrorText},
		{"submit_button", &p.SubmitButton},
		{"landing_url_pattern", &p.LandingURLPattern},
		{"listing_marker", &p.ListingMarker},
		{"listing_links", &p.ListingLinks},
	}
}

// Validate checks the selectors every run depends on.
func (p Profile) Validate() error {
	required := map[string]string{
		"write_button":      p.WriteButton,
		"write_url_pattern": p.WriteURLPattern,
		"title_input":       p.TitleInput,
		"content_input":     p.ContentInput,
		"submit_button":     p.SubmitButton,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("profile: %s is required", name)
		}
	}
	if p.LandingURLPattern == "" && p.ListingMarker == "" {
		return fmt.Errorf("profile: landing_url_pattern or listing_marker is required")
	}
	return nil
}

// AssetPolicy decides what an asset upload failure does to the run.
type AssetPolicy string

const (
	AssetPolicyFail AssetPolicy = "fail"
	AssetPolicySkip AssetPolicy = "skip"
)

// Options holds every retry ceiling, delay and timeout of a run.
type Options struct {
	Locale     string
	BrowserBin string

	NavMaxAttempts       int
	NavBackoff           time.Duration
	ChallengeMaxAttempts int
	ChallengeBackoff     time.Duration

	NavTimeout         time.Duration
	ControlTimeout     time.Duration
	PopupTimeout       time.Duration
	UploadTimeout      time.Duration
	UploadPollInterval time.Duration
	SubmitTimeout      time.Duration
	LandingTimeout     time.Duration
	LandingPoll        time.Duration

	AssetPolicy AssetPolicy
}

func DefaultOptions() Options {
	return Options{
		Locale:               "ko-KR",
		NavMaxAttempts:       3,
		NavBackoff:           time.Second,
		ChallengeMaxAttempts: 3,
		ChallengeBackoff:     time.Second,
		NavTimeout:           30 * time.Second,
		ControlTimeout:       10 * time.Second,
		PopupTimeout:         10 * time.Second,
		UploadTimeout:        60 * time.Second,
		UploadPollInterval:   500 * time.Millisecond,
		SubmitTimeout:        10 * time.Second,
		LandingTimeout:       15 * time.Second,
		LandingPoll:          250 * time.Millisecond,
		AssetPolicy:          AssetPolicyFail,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Locale == "" {
		o.Locale = d.Locale
	}
	if o.NavMaxAttempts <= 0 {
		o.NavMaxAttempts = d.NavMaxAttempts
	}
	if o.ChallengeMaxAttempts <= 0 {
		o.ChallengeMaxAttempts = d.ChallengeMaxAttempts
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = d.NavTimeout
	}
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = d.ControlTimeout
	}
	if o.PopupTimeout <= 0 {
		o.PopupTimeout = d.PopupTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = d.UploadTimeout
	}
	if o.UploadPollInterval <= 0 {
		o.UploadPollInterval = d.UploadPollInterval
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = d.SubmitTimeout
	}
	if o.LandingTimeout <= 0 {
		o.LandingTimeout = d.LandingTimeout
	}
	if o.LandingPoll <= 0 {
		o.LandingPoll = d.LandingPoll
	}
	if o.AssetPolicy == "" {
		o.AssetPolicy = d.AssetPolicy
	}
	return o
}
