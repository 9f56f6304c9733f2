//go:build chunkdebug

package schedule

// debug makes invariant violations panic.
const debug = true
