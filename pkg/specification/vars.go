package specification

import (
	"strings"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/param"
)

// ReservedVarNames are var keys the CLI's --vars override must not touch:
// they collide with tokens the core itself resolves (workspace references,
// sample tokens).
var ReservedVarNames = map[string]bool{
	"WORKSPACE":           true,
	"MERLIN_SAMPLE_ID":    true,
	"MERLIN_SAMPLE_PATH":  true,
	"OUTPUT_PATH":         true,
}

// ParseVars parses the space-delimited "--vars KEY=VALUE ..." CLI argument
// list into a key -> coerced-value map. Keys must be alphanumeric plus
// underscore, must not contain '$', and must not be one of
// ReservedVarNames. Values that parse as integers are coerced to int64 via
// param.CoerceValue; everything else stays a string.
func ParseVars(args []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, errkind.New(errkind.VarsMalformed, "var '"+arg+"' is not in KEY=VALUE form")
		}
		if key == "" {
			return nil, errkind.New(errkind.VarsMalformed, "var '"+arg+"' has an empty key")
		}
		if strings.Contains(key, "$") {
			return nil, errkind.New(errkind.VarsMalformed, "var key '"+key+"' must not contain '$'")
		}
		if !isAlnumUnderscore(key) {
			return nil, errkind.New(errkind.VarsMalformed, "var key '"+key+"' must be alphanumeric or underscore")
		}
		if ReservedVarNames[strings.ToUpper(key)] {
			return nil, errkind.New(errkind.VarsMalformed, "var key '"+key+"' is reserved")
		}
		out[key] = param.CoerceValue(value)
	}
	return out, nil
}

func isAlnumUnderscore(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
