package transform

import (
	"fmt"
	"time"

	"github.com/roach88/formsync/internal/ir"
)

// DateLayout is the default layout for today.
const DateLayout = "2006-01-02"

// today yields the current date. It is only valid as a rule default.
func today(_ ir.IRValue, ctx Context) (ir.IRValue, bool) {
	if ctx.Now.IsZero() {
		return nil, false
	}
	return ir.IRString(ctx.Now.Format(argString(ctx.Args, "layout", DateLayout))), true
}

func checkToday(args ir.IRObject) error {
	if err := optionalString(args, "layout"); err != nil {
		return err
	}
	layout := argString(args, "layout", DateLayout)
	if time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC).Format(layout) == layout {
		return fmt.Errorf("args.layout %q has no date fields", layout)
	}
	return nil
}

// blankRow yields a one-element list holding an empty record with the keys
// in args.fields, so a repeated-record section starts with a row to fill.
func blankRow(_ ir.IRValue, ctx Context) (ir.IRValue, bool) {
	row := ir.IRObject{}
	if keys, ok := ctx.Args["fields"].(ir.IRArray); ok {
		for _, k := range keys {
			row[ir.Text(k)] = ir.IRString("")
		}
	}
	return ir.IRArray{row}, true
}

func checkBlankRow(args ir.IRObject) error {
	if v, present := args["fields"]; present {
		keys, ok := v.(ir.IRArray)
		if !ok {
			return fmt.Errorf("args.fields must be a list of keys")
		}
		for i, k := range keys {
			if _, ok := k.(ir.IRString); !ok {
				return fmt.Errorf("args.fields[%d] must be a string", i)
			}
		}
	}
	return nil
}

// literal yields args.value.
func literal(_ ir.IRValue, ctx Context) (ir.IRValue, bool) {
	v, ok := ctx.Args["value"]
	return v, ok
}

func checkLiteral(args ir.IRObject) error {
	if _, ok := args["value"]; !ok {
		return fmt.Errorf("args.value is required")
	}
	return nil
}
