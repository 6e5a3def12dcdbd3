package arpcache

import "errors"

var (
	errUnsupportedARP   = errors.New("arpcache: unsupported hardware/protocol type or length")
	errUnknownInterface = errors.New("arpcache: unknown receiving interface")
)
