package automation

import (
	"errors"
	"fmt"
)

// Step names a state of the posting automaton.
type Step string

const (
	StepInit          Step = "init"
	StepAuthenticate  Step = "authenticate"
	StepNavigate      Step = "navigate"
	StepFillForm      Step = "fill_form"
	StepUploadAssets  Step = "upload_assets"
	StepSubmit        Step = "submit"
	StepVerifyLanding Step = "verify_landing"
)

var (
	ErrLaunch               = errors.New("browser launch failed")
	ErrUnknownDestination   = errors.New("unknown destination")
	ErrLoginRequired        = errors.New("login required")
	ErrWritePageUnreachable = errors.New("could not reach write page")
	ErrControlMissing       = errors.New("missing form control")
	ErrUploadFailed         = errors.New("asset upload failed")
	ErrChallengeFailed      = errors.New("challenge solve failed")
	ErrDialogRejected       = errors.New("submission rejected")
	ErrPostNotConfirmed     = errors.New("post did not complete")
)

// StepError is the single fatal error a run ends with. Error returns the
// operator-facing message unchanged.
type StepError struct {
	Step    Step
	Message string
	Err     error
}

func (e *StepError) Error() string {
	return e.Message
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step Step, kind error, cause error, format string, args ...any) *StepError {
	err := kind
	if cause != nil {
		err = errors.Join(kind, cause)
	}
	return &StepError{Step: step, Message: fmt.Sprintf(format, args...), Err: err}
}
