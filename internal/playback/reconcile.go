package playback

import (
	"fmt"
	"math"

	"github.com/sharetube/watchparty/internal/domain"
)

// DefaultDriftThreshold is the largest position difference, in seconds, that
// a follower leaves uncorrected.
const DefaultDriftThreshold = 3.0

type CommandKind int

const (
	CommandLoad CommandKind = iota + 1
	CommandPlay
	CommandPause
	CommandSeek
)

func (k CommandKind) String() string {
	switch k {
	case CommandLoad:
		return "load"
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandSeek:
		return "seek"
	}

	return fmt.Sprintf("command(%d)", int(k))
}

type Command struct {
	Kind     CommandKind
	VideoRef string
	Position float64
}

func (c Command) String() string {
	switch c.Kind {
	case CommandLoad:
		return "load " + c.VideoRef
	case CommandSeek:
		return fmt.Sprintf("seek %.3f", c.Position)
	}

	return c.Kind.String()
}

// Sample is what a follower knows about its own player when a snapshot
// arrives.
type Sample struct {
	VideoRef            string
	Position            float64
	Playing             bool
	LastAppliedRevision int64
}

// Reconcile returns the player commands that bring sample in line with state,
// in the order they must be issued, and whether state is newer than anything
// applied so far. A stale or duplicate snapshot yields no commands.
//
// Loading a different video comes first and leaves the player paused at 0;
// play/pause and the drift check are then evaluated against that.
func Reconcile(sample Sample, state domain.PlaybackState, threshold float64) ([]Command, bool) {
	if state.Revision <= sample.LastAppliedRevision {
		return nil, false
	}

	var cmds []Command
	position, playing := sample.Position, sample.Playing

	if !state.HasVideo() {
		if playing {
			cmds = append(cmds, Command{Kind: CommandPause})
		}

		return cmds, true
	}

	if state.VideoRef != sample.VideoRef {
		cmds = append(cmds, Command{Kind: CommandLoad, VideoRef: state.VideoRef})
		position, playing = 0, false
	}

	if state.Playing != playing {
		if state.Playing {
			cmds = append(cmds, Command{Kind: CommandPlay})
		} else {
			cmds = append(cmds, Command{Kind: CommandPause})
		}
	}

	if math.Abs(state.PositionSeconds-position) > threshold {
		cmds = append(cmds, Command{Kind: CommandSeek, Position: state.PositionSeconds})
	}

	return cmds, true
}
