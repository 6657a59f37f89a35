package logging

import "encoding/json"

// Field is one key-value pair attached to an event or a span.
// Keys are unique within a single event or span; insertion order is
// preserved through formatting.
type Field struct {
	Key   string
	Value any
}

// String returns a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Float64 returns a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Err returns an "error" field. A nil error serializes as null.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any returns a field serialized with encoding/json at format time.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// cachedField is a field whose value has already been serialized to JSON.
// Span records hold their fields in this form so the work is done once per
// span, no matter how many events inherit them.
type cachedField struct {
	key string
	raw json.RawMessage
}

// serializeFields encodes fields to their cached form. A value that cannot
// be serialized degrades to an error placeholder for that value only; it
// never fails the whole record.
func serializeFields(fields []Field) []cachedField {
	out := make([]cachedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, cachedField{key: f.Key, raw: marshalValue(f.Value)})
	}
	return out
}

func marshalValue(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal("serialize error: " + err.Error())
	}
	return raw
}
