/*
   Copyright 2021 Erigon contributors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package dbg

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	stack2 "github.com/go-stack/stack"
)

var (
	// GAPCODEC_ASSERT=true turns on invariant checks in the codec hot loops
	assertEnabled atomic.Bool

	// GAPCODEC_NOBATCH=true forces the word-at-a-time bulk OR/AND path
	NoBatch = EnvBool("GAPCODEC_NOBATCH", false)
)

func init() {
	assertEnabled.Store(EnvBool("GAPCODEC_ASSERT", false))
}

// Stack returns stack-trace in logger-friendly compact formatting
func Stack() string {
	return stack2.Trace().TrimBelow(stack2.Caller(1)).String()
}

// StackSkip - like Stack, but skips the given number of frames above the caller
func StackSkip(skip int) string {
	return stack2.Trace().TrimBelow(stack2.Caller(skip)).String()
}

func EnvBool(envVarName string, defaultVal bool) bool {
	v, _ := os.LookupEnv(envVarName)
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	return defaultVal
}

func EnvInt(envVarName string, defaultVal int) int {
	v, _ := os.LookupEnv(envVarName)
	if v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		return i
	}
	return defaultVal
}

// AssertEnabled reports whether invariant checks are active. Callers guard
// expensive checks (full array scans) with it.
func AssertEnabled() bool { return assertEnabled.Load() }

// SetAssert switches invariant checks on or off, returns the previous state.
func SetAssert(on bool) bool { return assertEnabled.Swap(on) }

// AssertionError is the panic value of a failed Assert
type AssertionError struct {
	Msg   string
	Stack string
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Msg }

// Assert panics with *AssertionError when checks are enabled and cond is false.
// Violations are contract bugs in the caller, never recoverable input errors.
func Assert(cond bool, format string, args ...interface{}) {
	if cond || !assertEnabled.Load() {
		return
	}
	panic(&AssertionError{Msg: fmt.Sprintf(format, args...), Stack: StackSkip(2)})
}
