package session

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/models"
)

const (
	idTimeLayout = "2006-01-02T15-04-05"
	dayLayout    = "2006-01-02"
)

// NewID builds a session ID: {YYYY-MM-DDTHH-MM-SS}-{model}.
func NewID(at time.Time, model string) string {
	return at.Format(idTimeLayout) + "-" + model
}

// ParseID splits a session ID into its start time and model label.
func ParseID(id string) (time.Time, string, error) {
	if len(id) < len(idTimeLayout)+2 || id[len(idTimeLayout)] != '-' {
		return time.Time{}, "", goerr.Wrap(apperr.ErrValidation, "malformed session id", goerr.V("id", id))
	}
	at, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", goerr.Wrap(apperr.ErrValidation, "malformed session id", goerr.V("id", id))
	}
	return at, id[len(idTimeLayout)+1:], nil
}

// dayDir is the date directory a session lives in: the first ten
// characters of its ID.
func dayDir(id string) string {
	return id[:len(dayLayout)]
}

func validateID(value any) error {
	id, _ := value.(string)
	if len(id) < len(dayLayout) {
		return errors.New("must start with a YYYY-MM-DD date")
	}
	if _, err := time.Parse(dayLayout, id[:len(dayLayout)]); err != nil {
		return errors.New("must start with a YYYY-MM-DD date")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return errors.New("must not contain path separators")
	}
	return nil
}

// Validate checks the fields the on-disk layout depends on.
func Validate(s *models.Session) error {
	if s == nil {
		return goerr.Wrap(apperr.ErrValidation, "session is nil")
	}
	err := validation.ValidateStruct(s,
		validation.Field(&s.SessionID, validation.Required, validation.By(validateID)),
		validation.Field(&s.ModelSource, validation.Required),
		validation.Field(&s.EntryPoint, validation.In(models.EntryPointCLI, models.EntryPointImport)),
	)
	if err != nil {
		return goerr.Wrap(apperr.ErrValidation, err.Error(), goerr.V("session_id", s.SessionID))
	}
	return nil
}
