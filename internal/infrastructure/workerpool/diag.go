package workerpool

import (
	"errors"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DumpErrorChain renders err and every wrapped error beneath it with
// spew.Sdump, for supervisor crash diagnostics where a single zap field
// would only show the outermost message.
func DumpErrorChain(err error) string {
	var b strings.Builder
	for err != nil {
		b.WriteString(spew.Sdump(err))
		err = errors.Unwrap(err)
	}
	return b.String()
}
