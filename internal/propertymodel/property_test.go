package propertymodel

import (
	"testing"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

func TestEncode(t *testing.T) {
	cases := []struct {
		name string
		prop Property
		want string
	}{
		{
			name: "string",
			prop: Property{Name: "n", Value: StringValue("v")},
			want: `<property for="n"><string>v</string></property>`,
		},
		{
			name: "number integer-valued",
			prop: Property{Name: "n", Value: NumberValue(42)},
			want: `<property for="n"><number>42</number></property>`,
		},
		{
			name: "number fractional",
			prop: Property{Name: "n", Value: NumberValue(1.5)},
			want: `<property for="n"><number>1.5</number></property>`,
		},
		{
			name: "boolean",
			prop: Property{Name: "n", Value: BooleanValue(true)},
			want: `<property for="n"><boolean>true</boolean></property>`,
		},
		{
			name: "datetime",
			prop: Property{Name: "n", Value: DateTimeValue("2024-01-02T15:04:05Z")},
			want: `<property for="n"><datetime>2024-01-02T15:04:05Z</datetime></property>`,
		},
		{
			name: "binary",
			prop: Property{Name: "n", Value: BinaryValue([]byte("hi"))},
			want: `<property for="n"><binary>aGk=</binary></property>`,
		},
		{
			name: "name attribute escaped",
			prop: Property{Name: `a"b`, Value: StringValue("v")},
			want: `<property for="a&quot;b"><string>v</string></property>`,
		},
		{
			name: "string value escaped",
			prop: Property{Name: "n", Value: StringValue("<a & b>")},
			want: `<property for="n"><string>&lt;a &amp; b&gt;</string></property>`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.prop)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Encode() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeInvalid(t *testing.T) {
	_, err := Encode(Property{Name: "", Value: StringValue("v")})
	if !storeerr.Is(err, storeerr.InvalidProperty) {
		t.Errorf("expected InvalidProperty, got %v", err)
	}
}

func TestDecodeValueRoundTrip(t *testing.T) {
	cases := []struct {
		tag  string
		text string
	}{
		{"string", "hello"},
		{"number", "3.25"},
		{"boolean", "false"},
		{"datetime", "2024-06-01T00:00:00Z"},
		{"binary", "aGk="},
	}
	for _, tc := range cases {
		t.Run(tc.tag, func(t *testing.T) {
			v, err := DecodeValue(tc.tag, tc.text)
			if err != nil {
				t.Fatalf("DecodeValue() error: %v", err)
			}
			prop := Property{Name: "n", Value: v}
			encoded, err := Encode(prop)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			want := "<property for=\"n\"><" + tc.tag + ">" + tc.text + "</" + tc.tag + "></property>"
			if string(encoded) != want {
				t.Errorf("round trip = %q, want %q", encoded, want)
			}
		})
	}
}

func TestDecodeValueInvalid(t *testing.T) {
	cases := []struct {
		name string
		tag  string
		text string
	}{
		{"unknown tag", "frobnicate", "x"},
		{"bad number", "number", "not-a-number"},
		{"bad boolean", "boolean", "True"},
		{"bad datetime", "datetime", "not a date"},
		{"bad base64", "binary", "!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeValue(tc.tag, tc.text)
			if !storeerr.Is(err, storeerr.InvalidProperty) {
				t.Errorf("expected InvalidProperty, got %v", err)
			}
		})
	}
}
