package transcript

import (
	"crypto/sha256"
	"encoding/hex"
)

// MetadataProvenanceKey is the metadata key under which a compressed,
// merged, or deduplicated message carries its provenance block.
const MetadataProvenanceKey = "_uc_original"

// SummaryIDPrefix prefixes every deterministic summary identifier.
const SummaryIDPrefix = "uc_sum_"

// Provenance links a compressed message back to its verbatim source ids.
//
// The orchestrator creates it, the expander reads it, and nothing mutates
// it afterward. SummaryID is deterministic over IDs, so repeated
// compression of identical input yields identical identifiers. ParentIDs
// accumulates the summary ids of sources that were themselves compressed
// in an earlier round.
type Provenance struct {
	IDs       []string `json:"ids"`
	Version   int      `json:"version"`
	SummaryID string   `json:"summary_id"`
	ParentIDs []string `json:"parent_ids,omitempty"`
}

// NewProvenance builds a provenance block over the given source ids.
func NewProvenance(ids []string, version int, parentIDs []string) Provenance {
	return Provenance{
		IDs:       append([]string(nil), ids...),
		Version:   version,
		SummaryID: SummaryIDFor(ids),
		ParentIDs: parentIDs,
	}
}

// SummaryIDFor derives the deterministic summary identifier for an ordered
// set of source ids. Identical id sequences always produce the same
// identifier.
func SummaryIDFor(ids []string) string {
	h := sha256.New()
	for i, id := range ids {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(id))
	}
	return SummaryIDPrefix + hex.EncodeToString(h.Sum(nil))[:16]
}

// ProvenanceOf extracts the provenance block from a message's metadata.
// It accepts both the in-process struct form and the generic map form a
// JSON round trip produces.
func ProvenanceOf(m Message) (Provenance, bool) {
	if m.Metadata == nil {
		return Provenance{}, false
	}
	raw, ok := m.Metadata[MetadataProvenanceKey]
	if !ok {
		return Provenance{}, false
	}
	switch v := raw.(type) {
	case Provenance:
		return v, true
	case *Provenance:
		if v == nil {
			return Provenance{}, false
		}
		return *v, true
	case map[string]any:
		return provenanceFromMap(v)
	}
	return Provenance{}, false
}

// WithProvenance returns a copy of the message carrying the provenance
// block in its metadata.
func WithProvenance(m Message, p Provenance) Message {
	out := m.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[MetadataProvenanceKey] = p
	return out
}

func provenanceFromMap(m map[string]any) (Provenance, bool) {
	ids, ok := stringSlice(m["ids"])
	if !ok {
		return Provenance{}, false
	}
	p := Provenance{IDs: ids}
	switch v := m["version"].(type) {
	case float64:
		p.Version = int(v)
	case int:
		p.Version = v
	}
	if s, ok := m["summary_id"].(string); ok {
		p.SummaryID = s
	}
	if parents, ok := stringSlice(m["parent_ids"]); ok {
		p.ParentIDs = parents
	}
	return p, true
}

func stringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
