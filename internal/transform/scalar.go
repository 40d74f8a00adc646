package transform

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/formsync/internal/ir"
)

func identity(src ir.IRValue, _ Context) (ir.IRValue, bool) {
	return src, true
}

// DefaultSentinels are the strings numeric_presence reads as "none".
// Matching is case-insensitive.
var DefaultSentinels = []string{"NIL", "NONE", "N/A", "0", "-"}

// numericPresence turns a count into a status word: zero or an empty
// sentinel yields args.zero ("provisional"); a positive integer yields
// args.positive ("complete"). Anything else does not apply.
func numericPresence(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	zero := ir.IRString(argString(ctx.Args, "zero", "provisional"))
	positive := ir.IRString(argString(ctx.Args, "positive", "complete"))

	var n int64
	switch v := src.(type) {
	case ir.IRInt:
		n = int64(v)
	case ir.IRString:
		s := strings.TrimSpace(string(v))
		if isSentinel(s, ctx.Args) {
			return zero, true
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		n = parsed
	default:
		return nil, false
	}

	switch {
	case n == 0:
		return zero, true
	case n > 0:
		return positive, true
	default:
		return nil, false
	}
}

func isSentinel(s string, args ir.IRObject) bool {
	sentinels := DefaultSentinels
	if list, ok := args["sentinels"].(ir.IRArray); ok {
		sentinels = make([]string, 0, len(list))
		for _, v := range list {
			sentinels = append(sentinels, ir.Text(v))
		}
	}
	for _, sentinel := range sentinels {
		if strings.EqualFold(s, sentinel) {
			return true
		}
	}
	return false
}

func checkNumericPresence(args ir.IRObject) error {
	if err := optionalString(args, "zero"); err != nil {
		return err
	}
	if err := optionalString(args, "positive"); err != nil {
		return err
	}
	if v, present := args["sentinels"]; present {
		list, ok := v.(ir.IRArray)
		if !ok {
			return fmt.Errorf("args.sentinels must be a list of strings")
		}
		for i, s := range list {
			if _, ok := s.(ir.IRString); !ok {
				return fmt.Errorf("args.sentinels[%d] must be a string", i)
			}
		}
	}
	return nil
}

// mapValue looks the source's text up in args.table, falling back to
// args.fallback when present.
func mapValue(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	table, _ := argObject(ctx.Args, "table")
	if v, ok := table[ir.Text(src)]; ok {
		return v, true
	}
	if v, ok := ctx.Args["fallback"]; ok {
		return v, true
	}
	return nil, false
}

func checkMapValue(args ir.IRObject) error {
	if _, ok := argObject(args, "table"); !ok {
		return fmt.Errorf("args.table must be an object")
	}
	return nil
}

var upperCaser = cases.Upper(language.Und)

func upper(src ir.IRValue, _ Context) (ir.IRValue, bool) {
	s, ok := src.(ir.IRString)
	if !ok {
		return nil, false
	}
	return ir.IRString(upperCaser.String(string(s))), true
}

func trim(src ir.IRValue, _ Context) (ir.IRValue, bool) {
	s, ok := src.(ir.IRString)
	if !ok {
		return src, true
	}
	return ir.IRString(strings.Join(strings.Fields(string(s)), " ")), true
}
