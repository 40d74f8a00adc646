package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/formsync/internal/ir"
)

// Event is an input to Apply. The set of events is closed.
type Event interface {
	Kind() string
	event()
}

// Event kinds, as recorded in a draft's event log.
const (
	KindLoad             = "load"
	KindFieldChange      = "field_change"
	KindSectionActivated = "section_activated"
	KindReset            = "reset"
	KindMarkUserEdited   = "mark_user_edited"
)

// EventLoad loads a saved draft and runs the initial derivations.
type EventLoad struct {
	Snapshot   ir.IRObject
	Provenance map[string]string
}

// EventFieldChange is a direct user edit.
type EventFieldChange struct {
	Path  string
	Value ir.IRValue
}

// EventSectionActivated runs a pass scoped to one section's members.
type EventSectionActivated struct {
	SectionID string
}

// EventReset replaces the whole store and clears provenance.
type EventReset struct {
	Snapshot ir.IRObject
}

// EventMarkUserEdited marks a path user-owned without changing its value.
type EventMarkUserEdited struct {
	Path string
}

func (EventLoad) Kind() string             { return KindLoad }
func (EventFieldChange) Kind() string      { return KindFieldChange }
func (EventSectionActivated) Kind() string { return KindSectionActivated }
func (EventReset) Kind() string            { return KindReset }
func (EventMarkUserEdited) Kind() string   { return KindMarkUserEdited }

func (EventLoad) event()             {}
func (EventFieldChange) event()      {}
func (EventSectionActivated) event() {}
func (EventReset) event()            {}
func (EventMarkUserEdited) event()   {}

// EncodeEvent converts an event to a JSON-compatible payload for the
// draft event log.
func EncodeEvent(ev Event) (ir.IRObject, error) {
	switch ev := ev.(type) {
	case EventLoad:
		prov := ir.IRObject{}
		for _, k := range slices.Sorted(maps.Keys(ev.Provenance)) {
			prov[k] = ir.IRString(ev.Provenance[k])
		}
		return ir.IRObject{"snapshot": snapshotOrEmpty(ev.Snapshot), "provenance": prov}, nil
	case EventFieldChange:
		v := ev.Value
		if v == nil {
			v = ir.IRNull{}
		}
		return ir.IRObject{"path": ir.IRString(ev.Path), "value": v}, nil
	case EventSectionActivated:
		return ir.IRObject{"section_id": ir.IRString(ev.SectionID)}, nil
	case EventReset:
		return ir.IRObject{"snapshot": snapshotOrEmpty(ev.Snapshot)}, nil
	case EventMarkUserEdited:
		return ir.IRObject{"path": ir.IRString(ev.Path)}, nil
	default:
		return nil, fmt.Errorf("cannot encode event %T", ev)
	}
}

// DecodeEvent rebuilds an event from its kind and payload.
func DecodeEvent(kind string, payload ir.IRObject) (Event, error) {
	switch kind {
	case KindLoad:
		snap, err := objectField(payload, "snapshot")
		if err != nil {
			return nil, err
		}
		provObj, err := objectField(payload, "provenance")
		if err != nil {
			return nil, err
		}
		prov := make(map[string]string, len(provObj))
		for k, v := range provObj {
			s, ok := v.(ir.IRString)
			if !ok {
				return nil, fmt.Errorf("load: provenance[%q] must be a string", k)
			}
			prov[k] = string(s)
		}
		return EventLoad{Snapshot: snap, Provenance: prov}, nil
	case KindFieldChange:
		path, err := stringField(payload, "path")
		if err != nil {
			return nil, err
		}
		v, ok := payload["value"]
		if !ok {
			return nil, fmt.Errorf("field_change: missing value")
		}
		return EventFieldChange{Path: path, Value: v}, nil
	case KindSectionActivated:
		id, err := stringField(payload, "section_id")
		if err != nil {
			return nil, err
		}
		return EventSectionActivated{SectionID: id}, nil
	case KindReset:
		snap, err := objectField(payload, "snapshot")
		if err != nil {
			return nil, err
		}
		return EventReset{Snapshot: snap}, nil
	case KindMarkUserEdited:
		path, err := stringField(payload, "path")
		if err != nil {
			return nil, err
		}
		return EventMarkUserEdited{Path: path}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func snapshotOrEmpty(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

func stringField(payload ir.IRObject, key string) (string, error) {
	s, ok := payload[key].(ir.IRString)
	if !ok {
		return "", fmt.Errorf("payload field %q must be a string", key)
	}
	return string(s), nil
}

func objectField(payload ir.IRObject, key string) (ir.IRObject, error) {
	v, present := payload[key]
	if !present {
		return ir.IRObject{}, nil
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("payload field %q must be an object", key)
	}
	return obj, nil
}
