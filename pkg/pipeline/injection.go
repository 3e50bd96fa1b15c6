package pipeline

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
)

// extraFilterKeyPattern constrains generative-classifier filter keys to plain
// field paths. Operators start with $ and never match.
var extraFilterKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ScreenExtraFilters validates model-supplied equality filters before they
// may join a pipeline. Deterministic extractor output never passes through
// here; only the generative path is screened.
func ScreenExtraFilters(filters map[string]string) error {
	for key, value := range filters {
		if !extraFilterKeyPattern.MatchString(key) {
			return fmt.Errorf("%w: key %q is not a plain field path", apperrors.ErrUnsafeFilterValue, key)
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
			return fmt.Errorf("%w: value for %q matched injection fingerprint %s", apperrors.ErrUnsafeFilterValue, key, fingerprint)
		}
	}
	return nil
}
