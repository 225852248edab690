package propertymodel

import (
	"strconv"
	"strings"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

// Property is a named, typed attribute: the unit of write.
type Property struct {
	Name  string
	Value Value
}

// Encode produces the canonical XML fragment for p:
// <property for="NAME"><TYPE>PAYLOAD</TYPE></property>.
func Encode(p Property) ([]byte, error) {
	if p.Name == "" {
		return nil, storeerr.New(storeerr.InvalidProperty, "property name is empty")
	}
	if p.Value == nil {
		return nil, storeerr.New(storeerr.InvalidProperty, "property has no value")
	}
	var b strings.Builder
	b.WriteString(`<property for="`)
	b.WriteString(escapeAttr(p.Name))
	b.WriteString(`"><`)
	tag := p.Value.typeTag()
	b.WriteString(tag)
	b.WriteString(">")
	b.WriteString(p.Value.encodePayload())
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString("></property>")
	return []byte(b.String()), nil
}

// DecodeValue builds a Value from a type tag and its decoded text content,
// used by the stream parser once it has isolated one type-tagged child.
// Unknown tags are InvalidProperty.
func DecodeValue(tag, text string) (Value, error) {
	switch tag {
	case "string":
		return StringValue(text), nil
	case "number":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.InvalidProperty, "number unparsable", err)
		}
		v, err := NewNumberValue(f)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.InvalidProperty, "invalid number", err)
		}
		return v, nil
	case "boolean":
		v, err := NewBooleanValue(text)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.InvalidProperty, "invalid boolean", err)
		}
		return v, nil
	case "datetime":
		v, err := NewDateTimeValue(text)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.InvalidProperty, "invalid datetime", err)
		}
		return v, nil
	case "binary":
		v, err := NewBinaryValue(text)
		if err != nil {
			return nil, storeerr.Wrap(storeerr.InvalidProperty, "invalid binary", err)
		}
		return v, nil
	default:
		return nil, storeerr.New(storeerr.InvalidProperty, "unknown type tag "+tag)
	}
}

// escapeText escapes '&', '<' and '>' for use as XML text content; quotes
// are left as they are.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeAttr escapes text for use inside a double-quoted XML attribute value.
func escapeAttr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
