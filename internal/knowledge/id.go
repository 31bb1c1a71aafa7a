package knowledge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ctxvault/internal/models"
)

const idDateLayout = "2006-01-02"

// NewID builds a knowledge item ID: {category}-{YYYY-MM-DD}-{suffix}.
func NewID(cat models.Category, at time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", cat, at.Format(idDateLayout), suffix)
}

// randomSuffix returns 8 lowercase hex characters from a random UUID.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// idDate extracts the creation day embedded in an ID of category cat.
func idDate(id string, cat models.Category) (time.Time, bool) {
	rest, ok := strings.CutPrefix(id, string(cat)+"-")
	if !ok || len(rest) < len(idDateLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idDateLayout, rest[:len(idDateLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// dayKey returns the YYYY-MM-DD part of a knowledge file name, so files
// from different categories interleave by day. Names outside the ID scheme
// sort by their stem.
func dayKey(name string) string {
	stem := strings.TrimSuffix(name, fileExt)
	for _, c := range models.Categories {
		if rest, ok := strings.CutPrefix(stem, string(c)+"-"); ok && len(rest) >= len(idDateLayout) {
			return rest[:len(idDateLayout)]
		}
	}
	return stem
}

// validID rejects IDs that could address files outside a year directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func itemPath(cat models.Category, at time.Time, id string) string {
	return fmt.Sprintf("%s/%s/%s%s", cat, at.Format("2006"), id, fileExt)
}
