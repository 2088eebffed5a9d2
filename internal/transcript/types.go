package transcript

// Common role names. Roles are free-form strings; these are the ones the
// default preservation policy recognizes.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// Message is one entry of a conversational transcript.
//
// ID is caller-assigned and must remain stable across compress/expand
// round trips. Index is the message's position in the original sequence;
// duplicate analysis uses it to pick keep targets, nothing reorders by it.
// Content may be empty, which counts as trivially short.
type Message struct {
	ID        string         `json:"id"`
	Index     int            `json:"index"`
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ToolCalls []any          `json:"tool_calls,omitempty"`
	Name      string         `json:"name,omitempty"`
}

// Clone returns a copy of the message with its own metadata map and tool
// call slice. Values inside the metadata map are shared.
func (m Message) Clone() Message {
	out := m
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]any(nil), m.ToolCalls...)
	}
	return out
}

// HasToolCalls reports whether the message carries tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// VerbatimMap is the side-table of original messages keyed by their own
// id. Compression fills it with every message that was merged away,
// summarized, code-split, or deduplicated; preserved messages never
// appear in it.
type VerbatimMap map[string]Message

// IDs returns the side-table's keys in unspecified order.
func (v VerbatimMap) IDs() []string {
	ids := make([]string, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	return ids
}
