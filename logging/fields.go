package logging

import "encoding/json"

// fieldSet is an ordered field map accumulated during inheritance.
// Overwriting an existing key keeps its original position; new keys append.
type fieldSet struct {
	keys []string
	vals map[string]json.RawMessage
}

func newFieldSet() *fieldSet {
	return &fieldSet{vals: make(map[string]json.RawMessage)}
}

func (fs *fieldSet) set(key string, raw json.RawMessage) {
	if _, exists := fs.vals[key]; !exists {
		fs.keys = append(fs.keys, key)
	}
	fs.vals[key] = raw
}

func (fs *fieldSet) get(key string) (json.RawMessage, bool) {
	raw, ok := fs.vals[key]
	return raw, ok
}

// inheritedFields merges span fields down the ancestor chain with the
// event's own fields. The chain is walked root to leaf, each span's cached
// serialized field object overwriting earlier entries by key, and the
// event fields are merged last. The resulting invariant is the single most
// important correctness property of this package: the innermost span wins
// over the outermost span, and event-level fields win over all span
// fields.
func (l *Logger) inheritedFields(ref spanRef, eventFields []cachedField) *fieldSet {
	fs := newFieldSet()
	for _, span := range l.reg.ancestorFields(ref) {
		for _, cf := range span {
			fs.set(cf.key, cf.raw)
		}
	}
	for _, cf := range eventFields {
		fs.set(cf.key, cf.raw)
	}
	return fs
}
