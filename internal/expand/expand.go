package expand

import (
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// Options control expansion depth.
type Options struct {
	// Recursive keeps resolving while restored originals still carry a
	// provenance block. The default expands exactly one layer.
	Recursive bool
}

// Result is one Expand call's output. MessagesExpanded counts input
// messages for which at least one source id resolved; MessagesPassthrough
// counts the rest, so the two always sum to the input length. MissingIDs
// lists unresolved ids in first-seen order without repeats.
type Result struct {
	Messages            []transcript.Message `json:"messages"`
	MessagesExpanded    int                  `json:"messages_expanded"`
	MessagesPassthrough int                  `json:"messages_passthrough"`
	MissingIDs          []string             `json:"missing_ids"`
}

// Expand splices stored originals back into a compressed transcript.
//
// A message without a provenance block passes through unchanged. For one
// that has a block, each listed id is resolved against store in order and
// the originals take the message's place, preserving relative order
// against untouched neighbors. Ids the store cannot resolve land in
// MissingIDs, and the compressed message itself stays in the output at
// the first unresolved slot so no content is silently lost.
//
// By default one layer is expanded: a restored original that carries its
// own provenance block is returned as is. Options.Recursive keeps
// resolving until no block remains or the store has nothing further; an
// id already on the current resolution path stops that branch.
func Expand(messages []transcript.Message, store Store, opts Options) *Result {
	e := &expander{
		store:     store,
		recursive: opts.Recursive,
		onPath:    make(map[string]bool),
		recorded:  make(map[string]bool),
	}
	res := &Result{
		Messages: make([]transcript.Message, 0, len(messages)),
	}
	for _, m := range messages {
		prov, ok := transcript.ProvenanceOf(m)
		if !ok || len(prov.IDs) == 0 {
			res.Messages = append(res.Messages, m)
			res.MessagesPassthrough++
			continue
		}
		e.onPath[m.ID] = true
		restored, resolved := e.resolve(m, prov)
		delete(e.onPath, m.ID)
		res.Messages = append(res.Messages, restored...)
		if resolved > 0 {
			res.MessagesExpanded++
		} else {
			res.MessagesPassthrough++
		}
	}
	res.MissingIDs = e.missing
	if res.MissingIDs == nil {
		res.MissingIDs = []string{}
	}
	return res
}

type expander struct {
	store     Store
	recursive bool
	onPath    map[string]bool
	recorded  map[string]bool
	missing   []string
}

// resolve restores the originals behind one compressed message and
// reports how many of its ids resolved.
func (e *expander) resolve(m transcript.Message, prov transcript.Provenance) ([]transcript.Message, int) {
	out := make([]transcript.Message, 0, len(prov.IDs))
	resolved := 0
	placeholder := false
	for _, id := range prov.IDs {
		orig, ok := e.store.Get(id)
		if !ok {
			e.recordMissing(id)
			if !placeholder {
				out = append(out, m)
				placeholder = true
			}
			continue
		}
		resolved++
		out = append(out, e.restore(orig.Clone())...)
	}
	return out, resolved
}

// restore applies one recursive step to a single resolved original.
func (e *expander) restore(orig transcript.Message) []transcript.Message {
	if !e.recursive {
		return []transcript.Message{orig}
	}
	prov, ok := transcript.ProvenanceOf(orig)
	if !ok || len(prov.IDs) == 0 {
		return []transcript.Message{orig}
	}
	if e.onPath[orig.ID] {
		return []transcript.Message{orig}
	}
	e.onPath[orig.ID] = true
	defer delete(e.onPath, orig.ID)
	out, _ := e.resolve(orig, prov)
	return out
}

func (e *expander) recordMissing(id string) {
	if e.recorded[id] {
		return
	}
	e.recorded[id] = true
	e.missing = append(e.missing, id)
}
