package capture

import "errors"

var (
	// ErrAgain is returned by a Backend when it needs more input before a
	// frame can be produced. The decoder retries internally.
	ErrAgain = errors.New("capture: need more input")

	// ErrNotConnected is returned when decoding is attempted before Connect
	ErrNotConnected = errors.New("capture: decoder not connected")

	// ErrNoVideoStream is returned when the opened source carries no video
	ErrNoVideoStream = errors.New("capture: no video stream")

	// ErrStreamEnded is returned by a Backend once the source reached EOS
	ErrStreamEnded = errors.New("capture: stream ended")

	// ErrFormatChanged is returned by the converter when a frame no longer
	// matches the geometry it was built for
	ErrFormatChanged = errors.New("capture: frame format changed")
)
