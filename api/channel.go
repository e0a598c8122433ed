package api

// Channel identifies which of a unit's data streams a record came from.
// Per-channel emission order is preserved end to end; no total order is
// guaranteed across channels.
type Channel int8

const (
	ChannelOutput Channel = iota
	ChannelError
	ChannelWarning
	ChannelVerbose
	ChannelDebug
	ChannelInformation
)

// Channels lists every channel in declaration order. The slice is shared,
// callers must not mutate it.
var Channels = []Channel{
	ChannelOutput,
	ChannelError,
	ChannelWarning,
	ChannelVerbose,
	ChannelDebug,
	ChannelInformation,
}

func (c Channel) String() string {
	switch c {
	case ChannelOutput:
		return "output"
	case ChannelError:
		return "error"
	case ChannelWarning:
		return "warning"
	case ChannelVerbose:
		return "verbose"
	case ChannelDebug:
		return "debug"
	case ChannelInformation:
		return "information"
	default:
		return "unknown"
	}
}

// ParseChannel maps the string form produced by String back to a Channel.
func ParseChannel(v string) (Channel, bool) {
	for _, c := range Channels {
		if c.String() == v {
			return c, true
		}
	}
	return ChannelOutput, false
}
