package conversation

import (
	"strconv"

	"github.com/cline-tools/clinekit/pkg/coreclient"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

// Processor drains conversation snapshots: it walks messages from the
// current turn boundary, dispatches each at most once per turn, and
// reports whether a completion event was observed.
type Processor struct {
	coord   *Coordinator
	display Renderer
}

// NewProcessor creates a Processor dispatching to display.
func NewProcessor(coord *Coordinator, display Renderer) *Processor {
	return &Processor{coord: coord, display: display}
}

// Drain processes one snapshot. The upstream state is a full snapshot
// rather than a diff stream, so at-most-once dispatch rests entirely
// on the dedup key check here and the turn-scoped set behind it.
// Whenever a message is dispatched the turn boundary advances to the
// snapshot length, evicting the previous turn's keys; a pass that
// dispatches nothing marks nothing, so a no-op poll loop cannot grow
// the set.
func (p *Processor) Drain(snap *coreclient.Snapshot) (completion bool) {
	msgs := snap.Messages
	start := p.coord.TurnStart()

	for i := start; i < len(msgs); i++ {
		msg := msgs[i]

		key := dedupKey(i, msg)
		if p.coord.IsProcessed(key) {
			continue
		}

		if msg.Say == coreclient.SayCompletionResult {
			completion = true
		}

		if !ShouldDisplay(msg) {
			continue
		}

		p.display.Render(msg, i)
		p.coord.MarkProcessed(key)
		p.coord.CompleteTurn(len(msgs))
	}

	if completion {
		clinekitlog.Debug("completion observed in snapshot", "messages", len(msgs))
	}
	return completion
}

// dedupKey identifies a message within a turn. The timestamp
// disambiguates index reuse across tasks; messages without one fall
// back to the index alone.
func dedupKey(index int, msg coreclient.Message) string {
	ts := msg.Timestamp
	if ts == 0 {
		ts = int64(index)
	}
	return strconv.Itoa(index) + ":" + strconv.FormatInt(ts, 10)
}

// ShouldDisplay is the display filter: complete messages always pass;
// partial messages pass only as the empty streaming-text placeholder
// that marks where assistant output will appear.
func ShouldDisplay(msg coreclient.Message) bool {
	if msg.Partial {
		return msg.Type == "say" && msg.Say == coreclient.SayText && msg.Text == ""
	}
	return true
}
