package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// ErrUnavailable is matched by every error reporting that a metric cannot be
// computed from the relations at hand.
var ErrUnavailable = errors.New("metric unavailable")

// MissingColumnError reports the columns a metric needs but the relation
// lacks.
type MissingColumnError struct {
	Relation string
	Columns  []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing column(s) %s", e.Relation, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrUnavailable }

// Require returns a *MissingColumnError when rel lacks any of cols.
func Require(rel *dataset.Relation, cols ...string) error {
	if missing := rel.Missing(cols...); len(missing) > 0 {
		return &MissingColumnError{Relation: rel.Name(), Columns: missing}
	}
	return nil
}
