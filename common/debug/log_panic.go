package debug

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ncbi/sra-tools-sub027/common/dbg"
)

var panicReplacer = strings.NewReplacer("\n", " ", "\t", "", "\r", "")

// ErrPanic wraps every panic turned into an error by Recover
var ErrPanic = errors.New("recovered panic")

// Recover - turns a panic raised while decoding a buffer (failed assertion,
// index out of range on a malformed stream) into an error in format friendly for our logger.
// It must be deferred directly, recover() only works in the deferred call itself:
//
//	func A() (err error) {
//	    defer debug.Recover(&err)
//	}
func Recover(errp *error) {
	panicResult := recover()
	if panicResult == nil {
		return
	}
	var err error
	switch typed := panicResult.(type) {
	case *dbg.AssertionError:
		err = fmt.Errorf("%w: %s, trace: %s", ErrPanic, typed.Msg, panicReplacer.Replace(typed.Stack))
	case error:
		err = fmt.Errorf("%w: %v, trace: %s", ErrPanic, typed, panicReplacer.Replace(dbg.Stack()))
	default:
		err = fmt.Errorf("%w: %+v, trace: %s", ErrPanic, typed, panicReplacer.Replace(dbg.Stack()))
	}
	*errp = err
}
