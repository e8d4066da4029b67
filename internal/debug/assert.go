//go:build !debug
// +build !debug

package debug

// Assert is a no-op in release builds.
func Assert(bool, string, ...any) {}
