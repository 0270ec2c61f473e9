package panicerr

import (
	"github.com/sourcegraph/conc/panics"
)

// SafeValue runs fn and converts a panic into an error, keeping fn's value
// when it returns normally.
func SafeValue[T any](fn func() (T, error)) (T, error) {
	var (
		catcher panics.Catcher
		v       T
		err     error
	)
	catcher.Try(func() {
		v, err = fn()
	})
	if r := catcher.Recovered(); r != nil {
		var zero T
		return zero, r.AsError()
	}
	return v, err
}
