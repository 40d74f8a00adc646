package transform

import (
	"strings"

	"github.com/roach88/formsync/internal/ir"
)

// Address record keys, in the order each line looks them up.
var (
	houseKeys    = []string{"houseNo", "house_no", "house", "unit", "flat"}
	localityKeys = []string{"locality", "village", "area"}
	streetKeys   = []string{"street", "road"}
	cityKeys     = []string{"city", "town"}
	stateKeys    = []string{"state"}
	pinKeys      = []string{"pin", "pincode", "postal_code", "zip"}
	countryKeys  = []string{"country"}
)

// addressJoin joins an address record into lines in a fixed order:
// house/unit, locality, street, "City, State - PIN", country. Missing parts
// drop out with their separators. A plain string is already an address.
func addressJoin(src ir.IRValue, ctx Context) (ir.IRValue, bool) {
	switch v := src.(type) {
	case ir.IRString:
		s := strings.TrimSpace(string(v))
		return ir.IRString(s), s != ""
	case ir.IRObject:
		lines := make([]string, 0, 5)
		for _, keys := range [][]string{houseKeys, localityKeys, streetKeys} {
			if s := firstText(v, keys); s != "" {
				lines = append(lines, s)
			}
		}
		if s := cityLine(firstText(v, cityKeys), firstText(v, stateKeys), firstText(v, pinKeys)); s != "" {
			lines = append(lines, s)
		}
		if s := firstText(v, countryKeys); s != "" {
			lines = append(lines, s)
		}
		if len(lines) == 0 {
			return nil, false
		}
		return ir.IRString(strings.Join(lines, argString(ctx.Args, "separator", "\n"))), true
	default:
		return nil, false
	}
}

func cityLine(city, state, pin string) string {
	var b strings.Builder
	b.WriteString(city)
	if state != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(state)
	}
	if pin != "" {
		if b.Len() > 0 {
			b.WriteString(" - ")
		}
		b.WriteString(pin)
	}
	return b.String()
}

func firstText(obj ir.IRObject, keys []string) string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s := strings.TrimSpace(ir.Text(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func checkAddressJoin(args ir.IRObject) error {
	return optionalString(args, "separator")
}
