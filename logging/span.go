package logging

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// spanRef identifies a span record in the arena. The generation counter
// invalidates references to released slots, so a context captured inside a
// span that has since ended resolves to "no span" instead of a reused slot.
type spanRef struct {
	idx int32
	gen uint32
}

var noSpan = spanRef{idx: -1}

func (r spanRef) valid() bool { return r.idx >= 0 }

// traceExt carries the trace metadata attached to a span record. It is the
// part the export stage evicts when the span closes, while the record itself
// (name, parent, field cache) stays until release.
type traceExt struct {
	// local is the span context assigned when the span was created.
	local trace.SpanContext
	// remote is the remote parent context extracted from incoming headers,
	// zero unless context was propagated in from an external caller.
	remote trace.SpanContext
}

// record is one span in the arena. Children reference their parent by
// spanRef; parents hold no references to children, so there are no
// ownership cycles and span lifetime is governed entirely by End calls.
type record struct {
	gen    uint32
	inUse  bool
	name   string
	parent spanRef
	fields []Field

	// cached holds the serialized field object, populated lazily the first
	// time this span's fields are formatted.
	cacheMu  sync.Mutex
	cached   []cachedField
	hasCache bool

	ext atomicExt
}

// atomicExt is a small mutex-guarded holder for the evictable trace
// extension. Reads happen on every formatted event; writes happen once at
// creation and once at eviction.
type atomicExt struct {
	mu  sync.RWMutex
	ext *traceExt
}

func (a *atomicExt) load() *traceExt {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ext
}

func (a *atomicExt) store(e *traceExt) {
	a.mu.Lock()
	a.ext = e
	a.mu.Unlock()
}

// cachedFields returns the span's serialized field object, serializing it
// on first use. Callers hold the registry read lock, which excludes slot
// reuse; cacheMu only serializes cache population among concurrent
// readers.
func (r *record) cachedFields() []cachedField {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if !r.hasCache {
		r.cached = serializeFields(r.fields)
		r.hasCache = true
	}
	return r.cached
}

// registry is the span arena. Slots are reused through a free list; a
// generation counter per slot guards against stale references. Creation and
// release take the write lock (single writer per span), lookups during
// event formatting take the read lock.
type registry struct {
	mu    sync.RWMutex
	arena []*record
	free  []int32
}

func newRegistry() *registry {
	return &registry{}
}

func (g *registry) insert(name string, parent spanRef, local, remote trace.SpanContext, fields []Field) spanRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	var idx int32
	var rec *record
	if n := len(g.free); n > 0 {
		idx = g.free[n-1]
		g.free = g.free[:n-1]
		rec = g.arena[idx]
		rec.gen++
		rec.cacheMu.Lock()
		rec.cached = nil
		rec.hasCache = false
		rec.cacheMu.Unlock()
	} else {
		idx = int32(len(g.arena))
		rec = &record{}
		g.arena = append(g.arena, rec)
	}
	rec.inUse = true
	rec.name = name
	rec.parent = parent
	rec.fields = fields
	rec.ext.store(&traceExt{local: local, remote: remote})
	return spanRef{idx: idx, gen: rec.gen}
}

// lookup returns the record for ref, or nil if the ref is invalid, stale,
// or released.
func (g *registry) lookup(ref spanRef) *record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lookupLocked(ref)
}

func (g *registry) lookupLocked(ref spanRef) *record {
	if !ref.valid() {
		return nil
	}
	if int(ref.idx) >= len(g.arena) {
		return nil
	}
	rec := g.arena[ref.idx]
	if !rec.inUse || rec.gen != ref.gen {
		return nil
	}
	return rec
}

func (g *registry) release(ref spanRef) {
	if !ref.valid() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(ref.idx) >= len(g.arena) {
		return
	}
	rec := g.arena[ref.idx]
	if !rec.inUse || rec.gen != ref.gen {
		return
	}
	rec.inUse = false
	g.free = append(g.free, ref.idx)
}

// ancestorFields returns the cached field sets of the chain of open
// records root-first, ending at ref. The snapshot is taken under the
// registry read lock: insert mutates reused slots under the write lock, so
// a formatting event can never observe a slot mid-reuse or serialize a new
// occupant's fields through a stale reference. The chain is computed per
// event and never cached: spans open and close independently of any single
// event.
func (g *registry) ancestorFields(ref spanRef) [][]cachedField {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var chain [][]cachedField
	for ref.valid() {
		rec := g.lookupLocked(ref)
		if rec == nil {
			break
		}
		chain = append(chain, rec.cachedFields())
		ref = rec.parent
	}
	// walked leaf to root; reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// resolveExt returns the trace extension for ref. The current record's
// extension may already have been evicted by the export stage during close
// processing; the walk tolerates that and retries exactly one level up at
// the parent. It holds the registry read lock throughout, so a reused slot
// never satisfies a stale reference. Returned extensions are immutable.
func (g *registry) resolveExt(ref spanRef) *traceExt {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec := g.lookupLocked(ref)
	if rec == nil {
		return nil
	}
	ext := rec.ext.load()
	if ext == nil {
		parent := g.lookupLocked(rec.parent)
		if parent == nil {
			return nil
		}
		ext = parent.ext.load()
	}
	return ext
}

type spanCtxKey struct{}

func refFromContext(ctx context.Context) spanRef {
	if ctx == nil {
		return noSpan
	}
	if ref, ok := ctx.Value(spanCtxKey{}).(spanRef); ok {
		return ref
	}
	return noSpan
}

// contextWithRef returns a context carrying ref as the active span.
func contextWithRef(ctx context.Context, ref spanRef) context.Context {
	return context.WithValue(ctx, spanCtxKey{}, ref)
}

// Span is an open scope in the logger's span arena, backed by an OTel span
// for export. End must be called exactly once; it is safe to call more.
type Span struct {
	logger *Logger
	ref    spanRef
	name   string
	otel   trace.Span
	once   sync.Once
}

// Otel returns the underlying OTel span, for recording errors or
// attributes that should travel with the exported span.
func (s *Span) Otel() trace.Span { return s.otel }

// RecordError records err on the exported span and marks it failed.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.otel.RecordError(err)
}

// End closes the span. Stage order matters here and is a preserved
// contract: the export stage runs first and evicts the record's trace
// extension, so a close event formatted afterwards can no longer resolve
// trace metadata at the current level. The context resolver compensates by
// retrying one level up (see resolveTraceContext).
func (s *Span) End() {
	s.once.Do(func() {
		// export stage: end the OTel span (enqueued on the SDK's batch
		// processor, never blocks formatting) and evict trace metadata.
		s.otel.End()
		if rec := s.logger.reg.lookup(s.ref); rec != nil {
			rec.ext.store(nil)
		}

		// format stage close hook.
		if s.logger.logSpanClose {
			s.logger.logSpanCloseEvent(s.ref, s.name)
		}

		s.logger.reg.release(s.ref)
	})
}

// StartSpan opens a named span with the given fields. The returned context
// carries the span for event correlation and for parenting nested spans;
// it also carries the OTel span context for outbound propagation.
func (l *Logger) StartSpan(ctx context.Context, name string, fields ...Field) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent := refFromContext(ctx)

	var remote trace.SpanContext
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsRemote() {
		remote = sc
	}

	octx, ospan := l.tracer.Start(ctx, name)
	ref := l.reg.insert(name, parent, ospan.SpanContext(), remote, fields)

	s := &Span{logger: l, ref: ref, name: name, otel: ospan}
	return contextWithRef(octx, ref), s
}
