package store

import (
	"fmt"
	"time"

	"github.com/roach88/formsync/internal/ir"
)

// timeLayout stores wall-clock readings as sortable UTC text. The readings
// are data for replay, never an ordering key.
const timeLayout = time.RFC3339Nano

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT to an IRObject. Integers keep
// full int64 precision.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	return ir.UnmarshalObject([]byte(data))
}

// marshalProvenance stores a provenance map as a canonical JSON object of
// path to tag.
func marshalProvenance(tags map[string]string) (string, error) {
	obj := make(ir.IRObject, len(tags))
	for path, tag := range tags {
		obj[path] = ir.IRString(tag)
	}
	return marshalObject(obj)
}

func unmarshalProvenance(data string) (map[string]string, error) {
	obj, err := unmarshalObject(data)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(obj))
	for path, v := range obj {
		s, ok := v.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("provenance tag for %q is %s, want string", path, ir.KindOf(v))
		}
		tags[path] = string(s)
	}
	return tags, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
