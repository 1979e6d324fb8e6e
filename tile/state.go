package tile

// State is the lifecycle state of one tile record.
//
//	Initial -> Loading -> {Loaded | Obsolete} -> {Parsed | Partial | Invalid | Obsolete}
//
// Obsolete is reachable from every state and is terminal.
type State int32

const (
	StateInitial State = iota
	StateLoading
	StateLoaded
	StatePartial
	StateParsed
	StateInvalid
	StateObsolete
)

var stateNames = [...]string{
	StateInitial:  "initial",
	StateLoading:  "loading",
	StateLoaded:   "loaded",
	StatePartial:  "partial",
	StateParsed:   "parsed",
	StateInvalid:  "invalid",
	StateObsolete: "obsolete",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Ready reports whether the tile has been parsed, at least partially.
func (s State) Ready() bool {
	return s == StatePartial || s == StateParsed
}

// Immutable reports whether the tile waits for nothing: neither a fetch nor missing
// resources. Only an explicit reparse moves a parsed tile again.
func (s State) Immutable() bool {
	return s == StateParsed || s == StateInvalid || s == StateObsolete
}
