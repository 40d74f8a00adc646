package transform

import (
	"fmt"
	"strings"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

// listProject maps each record of a list onto a new record shape.
//
// args.fields maps target key -> source (a relative path string, or an
// object {from, transform, args}). args.where optionally filters records.
// Non-object elements and records that project to nothing are dropped.
func listProject(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	list, ok := src.(ir.IRArray)
	if !ok {
		return nil, false
	}
	fields, _ := argObject(ctx.Args, "fields")
	where, _ := argObject(ctx.Args, "where")

	out := make(ir.IRArray, 0, len(list))
	for _, elem := range list {
		record, ok := elem.(ir.IRObject)
		if !ok || !matchesWhere(record, where) {
			continue
		}
		if row, ok := projectRecord(record, fields, ctx); ok {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// projectRecord builds one projected row. Every target key is present; keys
// whose source is empty hold "". A row with no non-empty value is dropped.
func projectRecord(record ir.IRObject, fields ir.IRObject, ctx Context) (ir.IRObject, bool) {
	row := make(ir.IRObject, len(fields))
	filled := false
	for _, key := range fields.SortedKeys() {
		v := projectField(record, fields[key], ctx)
		if fieldpath.IsEmpty(v) {
			row[key] = ir.IRString("")
			continue
		}
		row[key] = v
		filled = true
	}
	return row, filled
}

func projectField(record ir.IRObject, spec ir.IRValue, ctx Context) ir.IRValue {
	from, transform, args := "", "", ir.IRObject(nil)
	switch s := spec.(type) {
	case ir.IRString:
		from = string(s)
	case ir.IRObject:
		from = argString(s, "from", "")
		transform = argString(s, "transform", "")
		args, _ = argObject(s, "args")
	default:
		return nil
	}

	p, err := fieldpath.Parse(from)
	if err != nil {
		return nil
	}
	v, ok := fieldpath.Get(record, p)
	if !ok || fieldpath.IsEmpty(v) {
		return nil
	}
	if transform == "" || ctx.Registry == nil {
		return v
	}

	nested := ctx
	nested.Args = args
	out, ok := ctx.Registry.Apply(transform, v, nested)
	if !ok {
		return nil
	}
	return out
}

func checkListProject(args ir.IRObject) error {
	fields, ok := argObject(args, "fields")
	if !ok || len(fields) == 0 {
		return fmt.Errorf("args.fields must be a non-empty object")
	}
	if err := checkFieldSpecs(fields); err != nil {
		return err
	}
	if w, present := args["where"]; present {
		if _, ok := w.(ir.IRObject); !ok {
			return fmt.Errorf("args.where must be an object")
		}
	}
	return nil
}

func checkFieldSpecs(fields ir.IRObject) error {
	for _, key := range fields.SortedKeys() {
		var from string
		switch s := fields[key].(type) {
		case ir.IRString:
			from = string(s)
		case ir.IRObject:
			if err := requireString(s, "from"); err != nil {
				return fmt.Errorf("args.fields.%s: %w", key, err)
			}
			from = argString(s, "from", "")
		default:
			return fmt.Errorf("args.fields.%s must be a path or {from, transform}", key)
		}
		if err := checkPath("fields."+key, from); err != nil {
			return err
		}
	}
	return nil
}

// pick selects one record of a list by args.index or by the first match of
// args.where, then optionally descends into args.field.
func pick(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	list, ok := src.(ir.IRArray)
	if !ok {
		return nil, false
	}

	var picked ir.IRValue
	if where, ok := argObject(ctx.Args, "where"); ok {
		for _, elem := range list {
			if matchesWhere(elem, where) {
				picked = elem
				break
			}
		}
	} else {
		idx := 0
		if n, ok := ctx.Args["index"].(ir.IRInt); ok {
			idx = int(n)
		}
		if idx < 0 || idx >= len(list) {
			return nil, false
		}
		picked = list[idx]
	}
	if picked == nil {
		return nil, false
	}

	if field := argString(ctx.Args, "field", ""); field != "" {
		p, err := fieldpath.Parse(field)
		if err != nil {
			return nil, false
		}
		v, ok := fieldpath.Get(picked, p)
		if !ok {
			return nil, false
		}
		picked = v
	}
	return picked, !fieldpath.IsEmpty(picked)
}

func checkPick(args ir.IRObject) error {
	if v, present := args["index"]; present {
		n, ok := v.(ir.IRInt)
		if !ok || n < 0 {
			return fmt.Errorf("args.index must be a non-negative integer")
		}
	}
	if w, present := args["where"]; present {
		if _, ok := w.(ir.IRObject); !ok {
			return fmt.Errorf("args.where must be an object")
		}
	}
	if err := optionalString(args, "field"); err != nil {
		return err
	}
	if f := argString(args, "field", ""); f != "" {
		return checkPath("field", f)
	}
	return nil
}

// joinNames renders a list as prose: "A", "A and B", "A, B and C".
// Records contribute their args.field (default "name").
func joinNames(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	list, ok := src.(ir.IRArray)
	if !ok {
		if s, ok := src.(ir.IRString); ok {
			return s, strings.TrimSpace(string(s)) != ""
		}
		return nil, false
	}

	field := argString(ctx.Args, "field", "name")
	var names []string
	for _, elem := range list {
		var v ir.IRValue = elem
		if obj, ok := elem.(ir.IRObject); ok {
			v = obj[field]
		}
		if s := strings.TrimSpace(ir.Text(v)); s != "" {
			names = append(names, s)
		}
	}

	conj := " " + argString(ctx.Args, "conjunction", "and") + " "
	switch len(names) {
	case 0:
		return nil, false
	case 1:
		return ir.IRString(names[0]), true
	default:
		last := len(names) - 1
		return ir.IRString(strings.Join(names[:last], ", ") + conj + names[last]), true
	}
}

// conditionalPick reads the discriminator (its source) and copies the field
// named by args.cases[discriminator]. The picked value may be projected with
// args.fields like list_project.
func conditionalPick(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	cases, ok := argObject(ctx.Args, "cases")
	if !ok || ctx.Store == nil {
		return nil, false
	}
	raw, ok := cases[ir.Text(src)].(ir.IRString)
	if !ok {
		return nil, false
	}
	p, err := fieldpath.Parse(string(raw))
	if err != nil {
		return nil, false
	}
	picked, ok := ctx.Store.GetPath(p)
	if !ok || fieldpath.IsEmpty(picked) {
		return nil, false
	}

	fields, ok := argObject(ctx.Args, "fields")
	if !ok {
		return picked, true
	}
	switch v := picked.(type) {
	case ir.IRArray:
		return listProject(v, ctx)
	case ir.IRObject:
		row, ok := projectRecord(v, fields, ctx)
		if !ok {
			return nil, false
		}
		return ir.IRArray{row}, true
	default:
		return nil, false
	}
}

func checkConditionalPick(args ir.IRObject) error {
	cases, ok := argObject(args, "cases")
	if !ok || len(cases) == 0 {
		return fmt.Errorf("args.cases must be a non-empty object")
	}
	for _, key := range cases.SortedKeys() {
		s, ok := cases[key].(ir.IRString)
		if !ok {
			return fmt.Errorf("args.cases.%s must be a path string", key)
		}
		if err := checkPath("cases."+key, string(s)); err != nil {
			return err
		}
	}
	if fields, ok := argObject(args, "fields"); ok {
		return checkFieldSpecs(fields)
	}
	return nil
}

func conditionalPickReads(args ir.IRObject) []string {
	cases, _ := argObject(args, "cases")
	var paths []string
	for _, key := range cases.SortedKeys() {
		if s, ok := cases[key].(ir.IRString); ok {
			paths = append(paths, string(s))
		}
	}
	return paths
}
