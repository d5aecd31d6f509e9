// Package apperr defines the error kinds shared across the workspace controller.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// Failure kinds surfaced by the workspace. Collaborator errors are wrapped
// in one of these so callers can branch with errors.Is.
var (
	ErrVaultOpen      = errors.New("vault open failed")
	ErrDocumentIO     = errors.New("document i/o failed")
	ErrRender         = errors.New("render failed")
	ErrPreviewResolve = errors.New("preview resolve failed")
)

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }
