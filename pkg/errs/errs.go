// pkg/errs/errs.go - error taxonomy shared by the mirror, index, download and step layers.

package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind represents the category of a failure.
type Kind int

const (
	KindMirror Kind = iota
	KindParse
	KindCache
	KindNotFound
	KindDownload
	KindVerify
	KindStep
	KindCancelled
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindMirror:
		return "MirrorError"
	case KindParse:
		return "ParseError"
	case KindCache:
		return "CacheError"
	case KindNotFound:
		return "NotFound"
	case KindDownload:
		return "DownloadError"
	case KindVerify:
		return "VerifyError"
	case KindStep:
		return "StepError"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ErrCancelled is returned when the cooperative cancellation flag was observed.
var ErrCancelled = errors.New("operation cancelled by user")

// Error is a categorized error. Subject names the repository, URL, file or
// step the failure is about.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Subject, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCancelled) hold for every cancelled error,
// including ones built around context.Canceled.
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && e.Kind == KindCancelled
}

func newError(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Mirror wraps a clone/pull failure.
func Mirror(repo string, err error) error { return newError(KindMirror, repo, err) }

// Parse wraps a per-manifest parse failure.
func Parse(file string, err error) error { return newError(KindParse, file, err) }

// Cache wraps a corrupt or unwritable index cache.
func Cache(repo string, err error) error { return newError(KindCache, repo, err) }

// NotFound reports that no repository yielded a manifest for name.
func NotFound(name string) error {
	return newError(KindNotFound, name, fmt.Errorf("package %q not found in any repository", name))
}

// Download wraps a network, status or content-length failure.
func Download(url string, err error) error { return newError(KindDownload, url, err) }

// Verify wraps a digest mismatch or unreadable file.
func Verify(path string, err error) error { return newError(KindVerify, path, err) }

// Cancel builds a Cancelled error about subject.
func Cancel(subject string) error { return newError(KindCancelled, subject, ErrCancelled) }

// Cancelled returns a Cancelled error when ctx is done, nil otherwise.
func Cancelled(ctx context.Context, subject string) error {
	if ctx.Err() != nil {
		return Cancel(subject)
	}
	return nil
}

// KindOf returns the kind of the outermost categorized error in the chain.
// Bare context cancellation counts as KindCancelled.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled, true
	}
	return 0, false
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	switch kind {
	case KindStep:
		var se *StepError
		if errors.As(err, &se) {
			return true
		}
	case KindCancelled:
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			return true
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(*Error); ok && ce.Kind == kind {
			return true
		}
	}
	return false
}

// StepError is the failure of a single interpreter step.
type StepError struct {
	Step   string // step kind, e.g. "download"
	Path   string // position in the tree, e.g. "install[2].then[0]"
	Reason error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] %s at %s: %v", KindStep, e.Step, e.Path, e.Reason)
}

// Unwrap returns the wrapped error
func (e *StepError) Unwrap() error {
	return e.Reason
}
