package coder

import (
	"fmt"
)

type State int

const (
	StateInited = State(iota)
	StateOpened
	StateFlushing
	StateError
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "INITED"
	case StateOpened:
		return "OPENED"
	case StateFlushing:
		return "FLUSHING"
	case StateError:
		return "ERROR"
	}
	return fmt.Sprintf("unexpected_state_%d", int(s))
}

// Flags of the first group.
const (
	FlagQScale       = uint32(1 << 1)
	FlagLowDelay     = uint32(1 << 19)
	FlagGlobalHeader = uint32(1 << 22)
	FlagClosedGOP    = uint32(1 << 31)
)

// Flags of the second group.
const (
	Flag2Fast        = uint32(1 << 0)
	Flag2NoOutput    = uint32(1 << 2)
	Flag2LocalHeader = uint32(1 << 3)
	Flag2ShowAll     = uint32(1 << 22)
	Flag2ExportMVs   = uint32(1 << 28)
	Flag2SkipManual  = uint32(1 << 29)
	Flag2RoFlushNoop = uint32(1 << 30)
	Flag2ICCProfiles = uint32(1 << 31)
)
