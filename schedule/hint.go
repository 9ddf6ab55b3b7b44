package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Hint is a known occurrence of an event, kept so later expansions can start
// the rule there instead of at the template start. It is only trusted while
// the template start and rule identity it was recorded against still match.
type Hint struct {
	Anchor        time.Time `json:"anchor"`
	TemplateStart time.Time `json:"template_start"`
	RuleIdentity  string    `json:"rule_identity"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// ValidFor reports whether the hint still describes ev.
func (h *Hint) ValidFor(ev *Event) bool {
	if h == nil || ev == nil || ev.Rule == nil {
		return false
	}
	return h.TemplateStart.Equal(ev.Start) &&
		h.RuleIdentity == ev.Rule.Identity() &&
		h.Anchor.After(ev.Start) &&
		h.End.After(h.Start)
}

// Hint returns the event's hint if one is present and still valid.
func (e *Event) Hint() mo.Option[Hint] {
	h := e.hint.Load()
	if !h.ValidFor(e) {
		return mo.None[Hint]()
	}
	return mo.Some(*h)
}

// RecordHint remembers an occurrence of the event. Occurrences at or before
// the template start carry no information and are ignored.
func (e *Event) RecordHint(start, end time.Time) {
	if e.Rule == nil || !start.After(e.Start) {
		return
	}
	e.hint.Store(&Hint{
		Anchor:        start,
		TemplateStart: e.Start,
		RuleIdentity:  e.Rule.Identity(),
		Start:         start,
		End:           end,
	})
}

// ClearHint drops the hint.
func (e *Event) ClearHint() {
	e.hint.Store(nil)
}

// HintPayload serializes the stored hint, valid or not, for persistence.
// It returns nil when there is none.
func (e *Event) HintPayload() ([]byte, error) {
	h := e.hint.Load()
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// RestoreHint loads a payload produced by HintPayload. A payload that does
// not decode leaves the event without a hint and returns the decode error
// for logging; it is never fatal to expansion.
func (e *Event) RestoreHint(payload []byte) error {
	if len(payload) == 0 {
		e.hint.Store(nil)
		return nil
	}
	var h Hint
	if err := json.Unmarshal(payload, &h); err != nil {
		e.hint.Store(nil)
		return fmt.Errorf("decode hint: %w", err)
	}
	e.hint.Store(&h)
	return nil
}
