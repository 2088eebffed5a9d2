package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/expand"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

const instrumentationName = "github.com/fyrsmithlabs/ultracontext/internal/store"

// Store holds versioned contexts. All methods are safe for concurrent
// use; returned snapshots are copies.
type Store struct {
	cfg    Config
	engine *compress.Service
	logger *logging.Logger
	tracer trace.Tracer

	operations metric.Int64Counter
	evictions  metric.Int64Counter

	mu       sync.RWMutex
	contexts map[string]*record
	order    []string // creation order, oldest first
}

// New creates a store. A nil engine gets a default compression service,
// a nil logger discards logs.
func New(cfg Config, engine *compress.Service, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if engine == nil {
		var err error
		engine, err = compress.NewService()
		if err != nil {
			return nil, fmt.Errorf("creating compression service: %w", err)
		}
	}

	s := &Store{
		cfg:      cfg,
		engine:   engine,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		contexts: make(map[string]*record),
	}
	s.initMetrics()
	return s, nil
}

func (s *Store) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	s.operations, err = meter.Int64Counter(
		"ultracontext.store.operations_total",
		metric.WithDescription("Store operations by kind"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create operations counter", zap.Error(err))
	}

	s.evictions, err = meter.Int64Counter(
		"ultracontext.store.evictions_total",
		metric.WithDescription("Contexts evicted by the MaxContexts bound"),
		metric.WithUnit("{context}"),
	)
	if err != nil {
		s.logger.Warn("failed to create evictions counter", zap.Error(err))
	}
}

func (s *Store) count(ctx context.Context, op string) {
	if s.operations != nil {
		s.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// Create stores a new context as version 1. Message ids must be unique.
func (s *Store) Create(ctx context.Context, metadata map[string]string, msgs []transcript.Message) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store.create",
		trace.WithAttributes(attribute.Int("messages", len(msgs))))
	defer span.End()

	if err := transcript.ValidateMessages(msgs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := checkUniqueIDs(nil, msgs); err != nil {
		return nil, err
	}

	rec := &record{
		ctx: Context{
			ID:        uuid.NewString(),
			Metadata:  cloneMetadata(metadata),
			CreatedAt: time.Now().UTC(),
		},
		next: 1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(ctx)
	ve := s.appendVersionLocked(rec, OperationCreate, messageIDs(msgs), cloneMessages(msgs), nil, 0)
	s.contexts[rec.ctx.ID] = rec
	s.order = append(s.order, rec.ctx.ID)

	s.count(ctx, "create")
	span.SetAttributes(attribute.String("context_id", rec.ctx.ID))
	return snapshotOf(rec, ve), nil
}

// Get returns a context at the given version. Version 0 means latest.
func (s *Store) Get(ctx context.Context, id string, version int) (*Snapshot, error) {
	_, span := s.tracer.Start(ctx, "store.get",
		trace.WithAttributes(attribute.String("context_id", id), attribute.Int("version", version)))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ve, err := s.lookupLocked(id, version)
	if err != nil {
		return nil, err
	}
	return snapshotOf(rec, ve), nil
}

// List returns contexts newest first. A non-positive limit returns all
// entries past the offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Context, error) {
	_, span := s.tracer.Start(ctx, "store.list")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Context, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec, ok := s.contexts[s.order[i]]; ok {
			out = append(out, contextOf(rec))
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return []Context{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// History returns the retained versions of a context, oldest first.
func (s *Store) History(ctx context.Context, id string) ([]Version, error) {
	_, span := s.tracer.Start(ctx, "store.history",
		trace.WithAttributes(attribute.String("context_id", id)))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	out := make([]Version, 0, len(rec.versions))
	for i := range rec.versions {
		out = append(out, versionOf(&rec.versions[i]))
	}
	return out, nil
}

// Append adds messages to the end of the transcript as a new version.
func (s *Store) Append(ctx context.Context, id string, msgs []transcript.Message) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store.append",
		trace.WithAttributes(attribute.String("context_id", id), attribute.Int("messages", len(msgs))))
	defer span.End()

	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: append requires at least one message", ErrInvalid)
	}
	if err := transcript.ValidateMessages(msgs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	latest := rec.latest()
	if err := checkUniqueIDs(latest.messages, msgs); err != nil {
		return nil, err
	}

	combined := append(cloneMessages(latest.messages), cloneMessages(msgs)...)
	ve := s.appendVersionLocked(rec, OperationAppend, messageIDs(msgs), combined, nil, 0)

	s.count(ctx, "append")
	return snapshotOf(rec, ve), nil
}

// Update patches one message and stores the result as a new version.
func (s *Store) Update(ctx context.Context, id, messageID string, patch MessagePatch) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store.update",
		trace.WithAttributes(attribute.String("context_id", id), attribute.String("message_id", messageID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	msgs := cloneMessages(rec.latest().messages)
	idx := -1
	for i := range msgs {
		if msgs[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("message %q: %w", messageID, ErrNotFound)
	}

	if patch.Role != nil {
		msgs[idx].Role = *patch.Role
	}
	if patch.Content != nil {
		msgs[idx].Content = *patch.Content
	}
	if patch.Name != nil {
		msgs[idx].Name = *patch.Name
	}
	if patch.Metadata != nil {
		msgs[idx].Metadata = cloneAnyMap(patch.Metadata)
	}

	ve := s.appendVersionLocked(rec, OperationUpdate, []string{messageID}, msgs, nil, 0)

	s.count(ctx, "update")
	return snapshotOf(rec, ve), nil
}

// Delete removes a context and all its versions.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "store.delete",
		trace.WithAttributes(attribute.String("context_id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[id]; !ok {
		return fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	delete(s.contexts, id)
	s.order = removeID(s.order, id)

	s.count(ctx, "delete")
	return nil
}

// DeleteMessages removes individual messages as a new version. Every id
// must exist in the latest version.
func (s *Store) DeleteMessages(ctx context.Context, id string, messageIDs []string) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "store.delete_messages",
		trace.WithAttributes(attribute.String("context_id", id), attribute.Int("messages", len(messageIDs))))
	defer span.End()

	if len(messageIDs) == 0 {
		return nil, fmt.Errorf("%w: delete requires at least one message id", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}

	want := make(map[string]bool, len(messageIDs))
	for _, mid := range messageIDs {
		want[mid] = true
	}
	latest := rec.latest()
	kept := make([]transcript.Message, 0, len(latest.messages))
	removed := make([]string, 0, len(messageIDs))
	for _, m := range latest.messages {
		if want[m.ID] {
			removed = append(removed, m.ID)
			delete(want, m.ID)
			continue
		}
		kept = append(kept, m.Clone())
	}
	if len(want) > 0 {
		for mid := range want {
			return nil, fmt.Errorf("message %q: %w", mid, ErrNotFound)
		}
	}

	ve := s.appendVersionLocked(rec, OperationDelete, removed, kept, nil, 0)

	s.count(ctx, "delete_messages")
	return snapshotOf(rec, ve), nil
}

// Compress runs the engine over the latest version and stores the result
// as a new version together with its verbatim side-table. The engine
// runs outside the store lock; if a concurrent write lands first the
// result is discarded with ErrConflict.
func (s *Store) Compress(ctx context.Context, id string, opts compress.Options) (*Snapshot, *compress.Result, error) {
	ctx, span := s.tracer.Start(ctx, "store.compress",
		trace.WithAttributes(attribute.String("context_id", id)))
	defer span.End()

	s.mu.RLock()
	rec, ok := s.contexts[id]
	if !ok {
		s.mu.RUnlock()
		return nil, nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	source := rec.latest().info.Version
	msgs := cloneMessages(rec.latest().messages)
	s.mu.RUnlock()

	opts.SourceVersion = source
	res, err := s.engine.CompressAsync(ctx, msgs, &opts)
	if err != nil {
		return nil, nil, fmt.Errorf("compressing context %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok = s.contexts[id]
	if !ok {
		return nil, nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	if rec.latest().info.Version != source {
		return nil, nil, fmt.Errorf("context %q changed during compression: %w", id, ErrConflict)
	}

	affected := res.Verbatim.IDs()
	sort.Strings(affected)
	vb := make(transcript.VerbatimMap, len(res.Verbatim))
	for k, v := range res.Verbatim {
		vb[k] = v.Clone()
	}
	ve := s.appendVersionLocked(rec, OperationCompress, affected, cloneMessages(res.Messages), vb, source)

	s.count(ctx, "compress")
	span.SetAttributes(
		attribute.Int("messages_compressed", res.Compression.MessagesCompressed),
		attribute.Float64("ratio", res.Compression.Ratio),
	)
	return snapshotOf(rec, ve), res, nil
}

// Expand reconstructs a version by splicing stored originals back in.
// Version 0 means latest. Recursive expansion walks markers produced by
// earlier compressions of the same context.
func (s *Store) Expand(ctx context.Context, id string, version int, recursive bool) (*expand.Result, error) {
	ctx, span := s.tracer.Start(ctx, "store.expand",
		trace.WithAttributes(attribute.String("context_id", id), attribute.Int("version", version)))
	defer span.End()

	s.mu.RLock()
	rec, ve, err := s.lookupLocked(id, version)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	msgs := cloneMessages(ve.messages)
	verbatim := s.mergedVerbatimLocked(rec, ve.info.Version)
	s.mu.RUnlock()

	s.count(ctx, "expand")
	return expand.Expand(msgs, expand.MapStore(verbatim), expand.Options{Recursive: recursive}), nil
}

// Search matches stored originals behind the latest version's markers.
// The pattern is literal, or a regex when wrapped in slashes.
func (s *Store) Search(ctx context.Context, id, pattern string) ([]expand.Match, error) {
	ctx, span := s.tracer.Start(ctx, "store.search",
		trace.WithAttributes(attribute.String("context_id", id)))
	defer span.End()

	s.mu.RLock()
	rec, ve, err := s.lookupLocked(id, 0)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	msgs := cloneMessages(ve.messages)
	verbatim := s.mergedVerbatimLocked(rec, ve.info.Version)
	s.mu.RUnlock()

	s.count(ctx, "search")
	return expand.SearchVerbatim(msgs, expand.MapStore(verbatim), pattern)
}

// Totals is a point-in-time set of store counters.
type Totals struct {
	Contexts     int `json:"contexts"`
	Messages     int `json:"messages"`
	Versions     int `json:"versions"`
	Compressions int `json:"compressions"`
}

// Totals reports counts over the retained state. Messages counts the
// latest version of each context.
func (s *Store) Totals(ctx context.Context) Totals {
	_, span := s.tracer.Start(ctx, "store.totals")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	t.Contexts = len(s.contexts)
	for _, rec := range s.contexts {
		t.Versions += len(rec.versions)
		if latest := rec.latest(); latest != nil {
			t.Messages += len(latest.messages)
		}
		for i := range rec.versions {
			if rec.versions[i].info.Operation == OperationCompress {
				t.Compressions++
			}
		}
	}
	return t
}

// lookupLocked resolves a context and version entry. Callers hold mu.
func (s *Store) lookupLocked(id string, version int) (*record, *versionEntry, error) {
	rec, ok := s.contexts[id]
	if !ok {
		return nil, nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	ve := rec.latest()
	if version != 0 {
		ve = rec.at(version)
	}
	if ve == nil {
		return nil, nil, fmt.Errorf("context %q version %d: %w", id, version, ErrVersionNotFound)
	}
	return rec, ve, nil
}

// mergedVerbatimLocked unions the verbatim tables of retained versions
// up to and including the given version. Ids are globally unique so
// collisions cannot occur. Callers hold mu.
func (s *Store) mergedVerbatimLocked(rec *record, upTo int) transcript.VerbatimMap {
	merged := transcript.VerbatimMap{}
	for i := range rec.versions {
		e := &rec.versions[i]
		if e.info.Version > upTo {
			break
		}
		for k, v := range e.verbatim {
			merged[k] = v.Clone()
		}
	}
	return merged
}

func (s *Store) appendVersionLocked(rec *record, op Operation, affected []string, msgs []transcript.Message, verbatim transcript.VerbatimMap, source int) *versionEntry {
	rec.versions = append(rec.versions, versionEntry{
		info: Version{
			Version:       rec.next,
			CreatedAt:     time.Now().UTC(),
			Operation:     op,
			Affected:      affected,
			SourceVersion: source,
		},
		messages: msgs,
		verbatim: verbatim,
	})
	rec.next++
	if max := s.cfg.maxVersions(); max > 0 && len(rec.versions) > max {
		rec.versions = append([]versionEntry(nil), rec.versions[len(rec.versions)-max:]...)
	}
	return rec.latest()
}

func (s *Store) evictLocked(ctx context.Context) {
	max := s.cfg.maxContexts()
	if max == 0 {
		return
	}
	for len(s.order) >= max {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.contexts, oldest)
		if s.evictions != nil {
			s.evictions.Add(ctx, 1)
		}
		s.logger.Warn("evicted oldest context", zap.String("context_id", oldest))
	}
}

func snapshotOf(rec *record, ve *versionEntry) *Snapshot {
	return &Snapshot{
		Context:  contextOf(rec),
		Version:  versionOf(ve),
		Messages: cloneMessages(ve.messages),
	}
}

func contextOf(rec *record) Context {
	out := rec.ctx
	out.Metadata = cloneMetadata(rec.ctx.Metadata)
	return out
}

func versionOf(ve *versionEntry) Version {
	out := ve.info
	out.Affected = append([]string(nil), ve.info.Affected...)
	return out
}

func messageIDs(msgs []transcript.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func checkUniqueIDs(existing, added []transcript.Message) error {
	seen := make(map[string]bool, len(existing)+len(added))
	for _, m := range existing {
		seen[m.ID] = true
	}
	for _, m := range added {
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate message id %q", ErrInvalid, m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
