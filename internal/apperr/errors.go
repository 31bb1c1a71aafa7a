// Package apperr holds the error taxonomy shared by the stores, the index
// and the outer surfaces. Match with errors.Is.
package apperr

import "github.com/m-mizutani/goerr/v2"

var (
	ErrNotFound      = goerr.New("not found")
	ErrAlreadyExists = goerr.New("already exists")
	ErrParse         = goerr.New("malformed frontmatter")
	ErrValidation    = goerr.New("validation failed")
	ErrIndex         = goerr.New("index update failed")
)
