//go:build debug
// +build debug

package debug

import "fmt"

// Assert panics when condition is false.
func Assert(condition bool, format string, v ...any) {
	if !condition {
		panic(fmt.Sprintf(format, v...))
	}
}
