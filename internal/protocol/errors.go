package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Episode input.
	ErrBadLayout = "E_BAD_LAYOUT"
	ErrBadStep   = "E_BAD_STEP"
	ErrNoEpisode = "E_NO_EPISODE"

	// Planning.
	ErrNoActions = "E_NO_ACTIONS"
	ErrLookup    = "E_LOOKUP"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadLayout:       {},
	ErrBadStep:         {},
	ErrNoEpisode:       {},
	ErrNoActions:       {},
	ErrLookup:          {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
