package store

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

var (
	// ErrNotFound is returned when a context or message id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrVersionNotFound is returned when a version was never created or
	// has been pruned by retention.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConflict is returned when a compression raced a concurrent
	// write and its source version is no longer the latest.
	ErrConflict = errors.New("version conflict")

	// ErrInvalid wraps rejected input: malformed messages, duplicate
	// ids, empty mutations.
	ErrInvalid = errors.New("invalid input")
)

// Operation names the mutation that produced a version.
type Operation string

const (
	OperationCreate   Operation = "create"
	OperationAppend   Operation = "append"
	OperationUpdate   Operation = "update"
	OperationDelete   Operation = "delete"
	OperationCompress Operation = "compress"
)

// Context is a stored conversation.
type Context struct {
	ID        string            `json:"id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Version records one mutation of a context's transcript.
type Version struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Operation Operation `json:"operation"`
	// Affected lists the message ids the operation touched.
	Affected []string `json:"affected,omitempty"`
	// SourceVersion is the version a compression read from. Zero for
	// other operations.
	SourceVersion int `json:"source_version,omitempty"`
}

// Snapshot is a context's transcript at a specific version.
type Snapshot struct {
	Context  Context              `json:"context"`
	Version  Version              `json:"version"`
	Messages []transcript.Message `json:"messages"`
}

// MessagePatch is a partial update to a stored message. Nil fields keep
// the current value; a non-nil Metadata replaces the whole map.
type MessagePatch struct {
	Role     *string        `json:"role,omitempty"`
	Content  *string        `json:"content,omitempty"`
	Name     *string        `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config bounds store retention.
type Config struct {
	// MaxVersions retained per context. Negative keeps all, zero
	// selects the default of 50.
	MaxVersions int
	// MaxContexts retained overall. Zero or negative is unlimited;
	// beyond the limit the oldest context is evicted.
	MaxContexts int
}

const defaultMaxVersions = 50

func (c Config) maxVersions() int {
	if c.MaxVersions < 0 {
		return 0
	}
	if c.MaxVersions == 0 {
		return defaultMaxVersions
	}
	return c.MaxVersions
}

func (c Config) maxContexts() int {
	if c.MaxContexts <= 0 {
		return 0
	}
	return c.MaxContexts
}

// record is the per-context state. Versions are ascending; next is the
// number the following mutation will take, surviving pruning.
type record struct {
	ctx      Context
	versions []versionEntry
	next     int
}

type versionEntry struct {
	info     Version
	messages []transcript.Message
	// verbatim holds originals captured by a compress operation, nil
	// otherwise.
	verbatim transcript.VerbatimMap
}

func (r *record) latest() *versionEntry {
	if len(r.versions) == 0 {
		return nil
	}
	return &r.versions[len(r.versions)-1]
}

func (r *record) at(version int) *versionEntry {
	for i := range r.versions {
		if r.versions[i].info.Version == version {
			return &r.versions[i]
		}
	}
	return nil
}

func cloneMessages(msgs []transcript.Message) []transcript.Message {
	if msgs == nil {
		return nil
	}
	out := make([]transcript.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
