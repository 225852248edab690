package propertystream

import "strconv"

// resolveEntity resolves the name between "&" and ";" (not including either
// delimiter) to its replacement text. Supports the five predefined XML
// entities and numeric references (&#NN; and &#xHH;).
func resolveEntity(name string) (string, bool) {
	switch name {
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "amp":
		return "&", true
	case "quot":
		return "\"", true
	case "apos":
		return "'", true
	}
	if len(name) > 1 && name[0] == '#' {
		var n int64
		var err error
		if len(name) > 2 && (name[1] == 'x' || name[1] == 'X') {
			n, err = strconv.ParseInt(name[2:], 16, 32)
		} else {
			n, err = strconv.ParseInt(name[1:], 10, 32)
		}
		if err != nil || n < 0 || n > 0x10FFFF {
			return "", false
		}
		return string(rune(n)), true
	}
	return "", false
}

// unescapeText resolves entity references in a fully-buffered string (used
// for attribute values, which are collected raw and unescaped once their
// closing quote is found rather than incrementally like type text).
func unescapeText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			out = append(out, s[i])
			continue
		}
		end := -1
		for j := i + 1; j < len(s) && j < i+33; j++ {
			if s[j] == ';' {
				end = j
				break
			}
		}
		if end == -1 {
			out = append(out, s[i])
			continue
		}
		if resolved, ok := resolveEntity(s[i+1 : end]); ok {
			out = append(out, resolved...)
			i = end
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
