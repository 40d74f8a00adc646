package transform

import (
	"fmt"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

func argString(args ir.IRObject, key, fallback string) string {
	if s, ok := args[key].(ir.IRString); ok {
		return string(s)
	}
	return fallback
}

func argObject(args ir.IRObject, key string) (ir.IRObject, bool) {
	obj, ok := args[key].(ir.IRObject)
	return obj, ok
}

func requireString(args ir.IRObject, key string) error {
	if _, ok := args[key].(ir.IRString); !ok {
		return fmt.Errorf("args.%s must be a string", key)
	}
	return nil
}

func optionalString(args ir.IRObject, key string) error {
	if v, present := args[key]; present {
		if _, ok := v.(ir.IRString); !ok {
			return fmt.Errorf("args.%s must be a string, got %s", key, ir.KindOf(v))
		}
	}
	return nil
}

func checkPath(key, raw string) error {
	if _, err := fieldpath.Parse(raw); err != nil {
		return fmt.Errorf("args.%s: %w", key, err)
	}
	return nil
}

// matchesWhere reports whether every key in where equals the record's value
// at that relative path.
func matchesWhere(record ir.IRValue, where ir.IRObject) bool {
	for key, want := range where {
		p, err := fieldpath.Parse(key)
		if err != nil {
			return false
		}
		got, ok := fieldpath.Get(record, p)
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}
