package findmodify

import "fmt"

// CountMismatchError reports a match count outside the configured bounds.
// A zero Found means no entries matched while allow_no_matches was false.
type CountMismatchError struct {
	Found int
	Min   int
	Max   *int
}

func (e *CountMismatchError) Error() string {
	switch {
	case e.Found == 0:
		return "Found no entries, but allow_no_matches=false"
	case e.Found < e.Min:
		return fmt.Sprintf("Found %d entries, but expected at least %d", e.Found, e.Min)
	case e.Max != nil:
		return fmt.Sprintf("Found %d entries, but expected at most %d", e.Found, *e.Max)
	default:
		return fmt.Sprintf("Found %d entries", e.Found)
	}
}

// ApplyError reports a rejected update. Updates issued before the failing
// one are not rolled back.
type ApplyError struct {
	ID  string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("Error while modifying for .id=%s: %v", e.ID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
