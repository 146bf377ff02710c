package core

import (
	"errors"
	"time"
)

// Defaults applied by NewEngine when an Options field is zero
const (
	DefaultDocumentRoot    = "www"
	DefaultDocument        = "index.html"
	DefaultReadBufferSize  = 1024
	MinReadBufferSize      = 16
	RegistryInitialCap     = 4
	registryGrowthNum      = 3
	registryGrowthDen      = 2
	maxAcceptRetryDelay    = time.Second
	initialAcceptRetryWait = 5 * time.Millisecond
)

// Error definitions
var (
	ErrServerClosed      = errors.New("server closed")
	ErrRegistryExhausted = errors.New("worker registry cannot grow")
	ErrEmptyRequest      = errors.New("empty request")
)
