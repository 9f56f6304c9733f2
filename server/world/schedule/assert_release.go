//go:build !chunkdebug

package schedule

const debug = false
