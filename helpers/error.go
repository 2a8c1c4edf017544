package helpers

import (
	"strings"

	"github.com/juju/errors"
)

// MultiError keeps every folded error, Cause is the first one
// so errors.IsNotValid and friends see through folding.
type MultiError struct {
	errors.Err
	Errors []error
}

func (self *MultiError) Cause() error { return self.Errors[0] }

// FoldErrors skips nil items. Single error is returned as is.
func FoldErrors(errs []error) error {
	nonNil := make([]error, 0, len(errs))
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
			ss = append(ss, e.Error())
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	err := &MultiError{Err: errors.NewErr(strings.Join(ss, "\n")), Errors: nonNil}
	err.SetLocation(1)
	return err
}
