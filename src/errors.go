package main

import (
	"errors"
)

var (
	ERR_BAD_INPUT           error = errors.New("Can't open input")
	ERR_STREAM_ENDED        error = errors.New("Stream ended")
	ERR_INTERRUPTED_BY_USER error = errors.New("Interrupted by user")
	ERR_BROKER              error = errors.New("Can't talk to the broker")
	ERR_OUTPUT_EXISTS       error = errors.New("Output file already exists")
)
