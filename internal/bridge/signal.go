package bridge

import (
	"github.com/pkg/errors"
)

// Signal is a lifecycle signal delivered by the host runtime
type Signal int

const (
	Ready Signal = iota
	ConfigRequested
	ConfigClosed
)

// Wire names fixed by the host platform
var signalNames = map[Signal]string{
	Ready:           "ready",
	ConfigRequested: "showConfiguration",
	ConfigClosed:    "webviewclosed",
}

// ErrUnknownSignal is returned for signal names or values outside the enumeration
var ErrUnknownSignal = errors.New("unknown signal")

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSignal maps a host signal name to its Signal
func ParseSignal(name string) (Signal, error) {
	for s, n := range signalNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownSignal, "%q", name)
}

// Signals lists every signal in enumeration order
func Signals() []Signal {
	return []Signal{Ready, ConfigRequested, ConfigClosed}
}
