package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/fieldpath"
	"github.com/roach88/formsync/internal/ir"
)

type rootReader ir.IRObject

func (r rootReader) GetPath(p fieldpath.Path) (ir.IRValue, bool) {
	return fieldpath.Get(ir.IRObject(r), p)
}

func apply(t *testing.T, name string, src ir.IRValue, args ir.IRObject) (ir.IRValue, bool) {
	t.Helper()
	return Default().Apply(name, src, Context{Args: args})
}

func TestDefaultRegistryNames(t *testing.T) {
	r := Default()
	for _, name := range []string{
		"identity", "address_join", "list_project", "conditional_pick", "today", "numeric_presence",
		"pick", "join_names", "map_value", "blank_row", "literal", "upper", "trim",
	} {
		assert.True(t, r.Has(name), name)
	}
	assert.Len(t, r.Names(), 13)
	assert.IsIncreasing(t, r.Names())
}

func TestRegisterDuplicate(t *testing.T) {
	r := Default()
	err := r.Register(Def{Name: "identity", Fn: identity})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.Error(t, r.Register(Def{Name: "nofn"}))
}

func TestApplyUnknownAndEmpty(t *testing.T) {
	_, ok := apply(t, "nope", ir.IRString("x"), nil)
	assert.False(t, ok)

	_, ok = apply(t, "identity", ir.IRString(""), nil)
	assert.False(t, ok, "empty results are never accepted")
}

func TestAddressJoin(t *testing.T) {
	tests := []struct {
		name   string
		src    ir.IRValue
		args   ir.IRObject
		want   string
		wantOK bool
	}{
		{
			name:   "missing middle",
			src:    ir.IRObject{"houseNo": ir.IRString("12"), "street": ir.IRString("Main St"), "country": ir.IRString("India")},
			want:   "12\nMain St\nIndia",
			wantOK: true,
		},
		{
			name: "full record",
			src: ir.IRObject{
				"houseNo":  ir.IRString("12"),
				"locality": ir.IRString("Baner"),
				"street":   ir.IRString("Main St"),
				"city":     ir.IRString("Pune"),
				"state":    ir.IRString("Maharashtra"),
				"pin":      ir.IRString("411045"),
				"country":  ir.IRString("India"),
			},
			want:   "12\nBaner\nMain St\nPune, Maharashtra - 411045\nIndia",
			wantOK: true,
		},
		{
			name:   "state and pin only",
			src:    ir.IRObject{"state": ir.IRString("Goa"), "pin": ir.IRInt(403001)},
			want:   "Goa - 403001",
			wantOK: true,
		},
		{
			name:   "city and pin",
			src:    ir.IRObject{"city": ir.IRString("Pune"), "pin": ir.IRString("411045")},
			want:   "Pune - 411045",
			wantOK: true,
		},
		{
			name:   "custom separator",
			src:    ir.IRObject{"street": ir.IRString("Main St"), "country": ir.IRString("India")},
			args:   ir.IRObject{"separator": ir.IRString(", ")},
			want:   "Main St, India",
			wantOK: true,
		},
		{
			name:   "string passes through",
			src:    ir.IRString("  12 Main St, Pune  "),
			want:   "12 Main St, Pune",
			wantOK: true,
		},
		{
			name: "all empty",
			src:  ir.IRObject{"street": ir.IRString(" "), "city": ir.IRNull{}},
		},
		{
			name: "wrong type",
			src:  ir.IRInt(3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := apply(t, "address_join", tt.src, tt.args)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, ir.IRString(tt.want), got)
			}
		})
	}
}

func TestNumericPresence(t *testing.T) {
	tests := []struct {
		name   string
		src    ir.IRValue
		args   ir.IRObject
		want   string
		wantOK bool
	}{
		{"NIL sentinel", ir.IRString("NIL"), nil, "provisional", true},
		{"lowercase sentinel", ir.IRString("none"), nil, "provisional", true},
		{"n/a", ir.IRString("n/a"), nil, "provisional", true},
		{"dash", ir.IRString("-"), nil, "provisional", true},
		{"zero int", ir.IRInt(0), nil, "provisional", true},
		{"positive int", ir.IRInt(5), nil, "complete", true},
		{"positive string", ir.IRString(" 12 "), nil, "complete", true},
		{"negative", ir.IRInt(-1), nil, "", false},
		{"garbage", ir.IRString("some"), nil, "", false},
		{"bool", ir.IRBool(true), nil, "", false},
		{
			"custom sentinels and words",
			ir.IRString("nothing"),
			ir.IRObject{
				"sentinels": ir.IRArray{ir.IRString("NOTHING")},
				"zero":      ir.IRString("no"),
			},
			"no", true,
		},
		{
			"custom sentinels replace defaults",
			ir.IRString("NIL"),
			ir.IRObject{"sentinels": ir.IRArray{ir.IRString("NOTHING")}},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := apply(t, "numeric_presence", tt.src, tt.args)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, ir.IRString(tt.want), got)
			}
		})
	}
}

func TestListProject(t *testing.T) {
	src := ir.IRArray{
		ir.IRObject{"name": ir.IRString("Jane Doe"), "nationality": ir.IRString("IN"), "address": ir.IRObject{"city": ir.IRString("Pune")}},
		ir.IRString("not a record"),
		ir.IRObject{"name": ir.IRString("John Roe"), "is_inventor": ir.IRBool(true)},
		ir.IRObject{"other": ir.IRString("x")},
	}
	args := ir.IRObject{
		"fields": ir.IRObject{
			"full_name": ir.IRString("name"),
			"city":      ir.IRString("address.city"),
			"shout":     ir.IRObject{"from": ir.IRString("name"), "transform": ir.IRString("upper")},
		},
	}

	got, ok := apply(t, "list_project", src, args)
	require.True(t, ok)
	assert.Equal(t, ir.IRArray{
		ir.IRObject{"full_name": ir.IRString("Jane Doe"), "city": ir.IRString("Pune"), "shout": ir.IRString("JANE DOE")},
		ir.IRObject{"full_name": ir.IRString("John Roe"), "city": ir.IRString(""), "shout": ir.IRString("JOHN ROE")},
	}, got)

	args["where"] = ir.IRObject{"is_inventor": ir.IRBool(true)}
	got, ok = apply(t, "list_project", src, args)
	require.True(t, ok)
	assert.Len(t, got, 1)

	_, ok = apply(t, "list_project", ir.IRArray{ir.IRInt(1)}, args)
	assert.False(t, ok)
}

func TestConditionalPick(t *testing.T) {
	store := rootReader{
		"applicants": ir.IRArray{ir.IRObject{"name": ir.IRString("Jane Doe")}},
		"form1_inventors": ir.IRArray{
			ir.IRObject{"name": ir.IRString("Ravi K"), "country": ir.IRString("IN")},
		},
	}
	args := ir.IRObject{
		"cases": ir.IRObject{
			"same_as_applicants": ir.IRString("applicants"),
			"separate":           ir.IRString("form1_inventors"),
		},
		"fields": ir.IRObject{"name": ir.IRString("name")},
	}
	r := Default()

	got, ok := r.Apply("conditional_pick", ir.IRString("same_as_applicants"), Context{Args: args, Store: store})
	require.True(t, ok)
	assert.Equal(t, ir.IRArray{ir.IRObject{"name": ir.IRString("Jane Doe")}}, got)

	got, ok = r.Apply("conditional_pick", ir.IRString("separate"), Context{Args: args, Store: store})
	require.True(t, ok)
	assert.Equal(t, ir.IRArray{ir.IRObject{"name": ir.IRString("Ravi K")}}, got)

	_, ok = r.Apply("conditional_pick", ir.IRString("unknown"), Context{Args: args, Store: store})
	assert.False(t, ok)

	_, ok = r.Apply("conditional_pick", ir.IRString("separate"), Context{Args: args})
	assert.False(t, ok, "no store means nothing to pick from")

	def, _ := r.Lookup("conditional_pick")
	assert.Equal(t, []string{"applicants", "form1_inventors"}, def.Reads(args))
}

func TestPick(t *testing.T) {
	src := ir.IRArray{
		ir.IRObject{"name": ir.IRString("Jane"), "role": ir.IRString("director")},
		ir.IRObject{"name": ir.IRString("John"), "role": ir.IRString("agent")},
	}

	got, ok := apply(t, "pick", src, ir.IRObject{"field": ir.IRString("name")})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Jane"), got)

	got, ok = apply(t, "pick", src, ir.IRObject{"index": ir.IRInt(1), "field": ir.IRString("name")})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("John"), got)

	got, ok = apply(t, "pick", src, ir.IRObject{"where": ir.IRObject{"role": ir.IRString("agent")}, "field": ir.IRString("name")})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("John"), got)

	_, ok = apply(t, "pick", src, ir.IRObject{"index": ir.IRInt(5)})
	assert.False(t, ok)
}

func TestJoinNames(t *testing.T) {
	one := ir.IRArray{ir.IRObject{"name": ir.IRString("A")}}
	two := ir.IRArray{ir.IRString("A"), ir.IRString("B")}
	three := ir.IRArray{ir.IRObject{"name": ir.IRString("A")}, ir.IRObject{"name": ir.IRString("")}, ir.IRString("B"), ir.IRString("C")}

	got, _ := apply(t, "join_names", one, nil)
	assert.Equal(t, ir.IRString("A"), got)
	got, _ = apply(t, "join_names", two, nil)
	assert.Equal(t, ir.IRString("A and B"), got)
	got, _ = apply(t, "join_names", three, nil)
	assert.Equal(t, ir.IRString("A, B and C"), got)

	_, ok := apply(t, "join_names", ir.IRArray{ir.IRObject{}}, nil)
	assert.False(t, ok)
}

func TestMapValue(t *testing.T) {
	args := ir.IRObject{"table": ir.IRObject{"yes": ir.IRString("convention"), "no": ir.IRString("ordinary")}}

	got, ok := apply(t, "map_value", ir.IRString("yes"), args)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("convention"), got)

	_, ok = apply(t, "map_value", ir.IRString("maybe"), args)
	assert.False(t, ok)

	got, ok = apply(t, "map_value", ir.IRBool(true), args)
	require.True(t, ok, "bools map through their display text")
	assert.Equal(t, ir.IRString("convention"), got)

	args["fallback"] = ir.IRString("ordinary")
	got, ok = apply(t, "map_value", ir.IRString("maybe"), args)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("ordinary"), got)
}

func TestDefaultOnlyTransforms(t *testing.T) {
	r := Default()
	now := time.Date(2026, 3, 9, 15, 4, 5, 0, time.UTC)

	got, ok := r.Apply("today", nil, Context{Now: now})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("2026-03-09"), got)

	got, ok = r.Apply("today", nil, Context{Now: now, Args: ir.IRObject{"layout": ir.IRString("02/01/2006")}})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("09/03/2026"), got)

	_, ok = r.Apply("today", nil, Context{})
	assert.False(t, ok)

	got, ok = r.Apply("blank_row", nil, Context{Args: ir.IRObject{"fields": ir.IRArray{ir.IRString("name"), ir.IRString("address")}}})
	require.True(t, ok)
	assert.Equal(t, ir.IRArray{ir.IRObject{"name": ir.IRString(""), "address": ir.IRString("")}}, got)

	got, ok = r.Apply("literal", nil, Context{Args: ir.IRObject{"value": ir.IRString("India")}})
	require.True(t, ok)
	assert.Equal(t, ir.IRString("India"), got)

	for _, name := range []string{"today", "blank_row", "literal"} {
		def, _ := r.Lookup(name)
		assert.True(t, def.DefaultOnly, name)
	}
}

func TestUpperAndTrim(t *testing.T) {
	got, ok := apply(t, "upper", ir.IRString("acme corp"), nil)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("ACME CORP"), got)

	got, ok = apply(t, "trim", ir.IRString("  Acme   Corp "), nil)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Acme Corp"), got)

	_, ok = apply(t, "trim", ir.IRString("   "), nil)
	assert.False(t, ok)
}

func TestCheckArgs(t *testing.T) {
	r := Default()
	tests := []struct {
		transform string
		args      ir.IRObject
		wantErr   string
	}{
		{"list_project", nil, "args.fields"},
		{"list_project", ir.IRObject{"fields": ir.IRObject{"a": ir.IRString("bad path")}}, "invalid path"},
		{"conditional_pick", ir.IRObject{"cases": ir.IRObject{}}, "args.cases"},
		{"conditional_pick", ir.IRObject{"cases": ir.IRObject{"x": ir.IRInt(1)}}, "path string"},
		{"map_value", nil, "args.table"},
		{"literal", nil, "args.value"},
		{"today", ir.IRObject{"layout": ir.IRString("plain")}, "no date fields"},
		{"numeric_presence", ir.IRObject{"sentinels": ir.IRString("NIL")}, "args.sentinels"},
		{"pick", ir.IRObject{"index": ir.IRInt(-1)}, "args.index"},
		{"blank_row", ir.IRObject{"fields": ir.IRArray{ir.IRInt(1)}}, "args.fields[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.transform+"/"+tt.wantErr, func(t *testing.T) {
			def, ok := r.Lookup(tt.transform)
			require.True(t, ok)
			require.NotNil(t, def.CheckArgs)
			err := def.CheckArgs(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	def, _ := r.Lookup("address_join")
	assert.NoError(t, def.CheckArgs(nil))
}
