package dto

// PropertyWire documents the property wire shape for client tooling, served
// as a JSON Schema by GET /debug/schema. It mirrors propertymodel.Property's
// XML encoding (<property for="NAME"><TYPE>PAYLOAD</TYPE></property>) rather
// than being the wire format itself: the store's actual wire format is XML,
// this is a read-only description of it.
type PropertyWire struct {
	For   string           `json:"for" jsonschema:"description=Non-empty property name, the XML for attribute"`
	Value PropertyValueWire `json:"value" jsonschema:"description=Exactly one of the typed fields below is set"`
}

// PropertyValueWire documents the five PropertyValue variants as optional
// fields; exactly one is populated for any given property, mirroring the
// tagged-union semantics propertymodel.Value enforces in code.
type PropertyValueWire struct {
	String   *string  `json:"string,omitempty" jsonschema:"description=UTF-8 text, XML-entity-escaped on the wire"`
	Number   *float64 `json:"number,omitempty" jsonschema:"description=Finite 64-bit float; NaN and Infinity are rejected"`
	Boolean  *bool    `json:"boolean,omitempty" jsonschema:"description=Encoded as lower-case true/false"`
	DateTime *string  `json:"datetime,omitempty" jsonschema:"description=RFC3339 timestamp text, stored and replayed verbatim"`
	Binary   *string  `json:"binary,omitempty" jsonschema:"description=Base64-encoded bytes, no line breaks"`
}
