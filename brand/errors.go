package brand

import "errors"

var (
	// ErrNoImages is returned when the sampled pool is empty.
	ErrNoImages = errors.New("brand: no images available")
	// ErrNoTransport is returned when a push is attempted without a transport.
	ErrNoTransport = errors.New("brand: no transport configured")
	// ErrUnknownGuild is returned for a guild that is not registered or has left.
	ErrUnknownGuild = errors.New("brand: unknown guild")
)
