package propertystream

import (
	"testing"

	"github.com/brynmoore/streamstore/internal/propertymodel"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

func feedAll(t *testing.T, p *Parser, chunks ...string) ([]propertymodel.Property, []error) {
	t.Helper()
	var props []propertymodel.Property
	var errs []error
	for _, c := range chunks {
		pp, ee := p.Feed([]byte(c))
		props = append(props, pp...)
		errs = append(errs, ee...)
	}
	return props, errs
}

func TestSimpleProperty(t *testing.T) {
	p := New(0)
	props, errs := feedAll(t, p, `<property for="n"><string>v</string></property>`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(props) != 1 || props[0].Name != "n" || props[0].Value != propertymodel.StringValue("v") {
		t.Fatalf("got %+v", props)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
}

func TestChunkedAcrossEveryBoundary(t *testing.T) {
	body := `<property for="n"><string>v</string></property>`
	var p *Parser
	var gotProps []propertymodel.Property
	p = New(0)
	for i := 0; i < len(body); i++ {
		props, errs := p.Feed([]byte{body[i]})
		if len(errs) != 0 {
			t.Fatalf("unexpected error at byte %d: %v", i, errs)
		}
		gotProps = append(gotProps, props...)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if len(gotProps) != 1 || gotProps[0].Name != "n" {
		t.Fatalf("got %+v", gotProps)
	}
}

func TestArbitraryChunking(t *testing.T) {
	body := `<property for="a"><number>1</number></property><property for="b"><boolean>true</boolean></property>`
	splits := [][]string{
		{body},
		{body[:10], body[10:]},
		{`<prop`, `erty for="a"><num`, `ber>1</number></property><property for="b"><boolean>true</boolean></property>`},
	}
	for i, chunks := range splits {
		p := New(0)
		props, errs := feedAll(t, p, chunks...)
		if len(errs) != 0 {
			t.Fatalf("split %d: unexpected errors: %v", i, errs)
		}
		if len(props) != 2 {
			t.Fatalf("split %d: got %d properties, want 2", i, len(props))
		}
	}
}

func TestItemWrapper(t *testing.T) {
	p := New(0)
	props, errs := feedAll(t, p, `<item><property for="n"><string>v</string></property></item>`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(props) != 1 {
		t.Fatalf("got %+v", props)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
}

func TestEntityResolution(t *testing.T) {
	p := New(0)
	props, errs := feedAll(t, p, `<property for="n"><string>&lt;a&gt; &amp; &#65;&#x42;</string></property>`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := propertymodel.StringValue("<a> & AB")
	if len(props) != 1 || props[0].Value != want {
		t.Fatalf("got %+v, want value %q", props, want)
	}
}

func TestUnterminatedProperty(t *testing.T) {
	p := New(0)
	_, errs := feedAll(t, p, `<property for="n"><string>v</string>`)
	if len(errs) != 0 {
		t.Fatalf("unexpected mid-stream errors: %v", errs)
	}
	err := p.Finish()
	if !storeerr.Is(err, storeerr.UnterminatedProperty) {
		t.Fatalf("expected UnterminatedProperty, got %v", err)
	}
}

func TestEmptyForAttributeIsInvalid(t *testing.T) {
	p := New(0)
	_, errs := feedAll(t, p, `<property for=""><string>x</string></property>`)
	if len(errs) != 1 || !storeerr.Is(errs[0], storeerr.InvalidProperty) {
		t.Fatalf("expected one InvalidProperty error, got %v", errs)
	}
}

func TestBadPropertyResilience(t *testing.T) {
	p := New(0)
	body := `<property for="n"><string>v</string></property><property for=""><string>x</string></property>`
	props, errs := feedAll(t, p, body)
	if len(props) != 1 || props[0].Name != "n" {
		t.Fatalf("expected first property to survive, got %+v", props)
	}
	if len(errs) != 1 || !storeerr.Is(errs[0], storeerr.InvalidProperty) {
		t.Fatalf("expected one InvalidProperty error for the second property, got %v", errs)
	}
}

func TestPropertyTooLargeResyncs(t *testing.T) {
	p := New(64) // small limit: the first property (87 bytes) overflows, the second (48 bytes) fits
	body := `<property for="n"><string>this value is much longer than the limit</string></property>` +
		`<property for="ok"><string>v</string></property>`
	props, errs := feedAll(t, p, body)
	foundTooLarge := false
	for _, e := range errs {
		if storeerr.Is(e, storeerr.PropertyTooLarge) {
			foundTooLarge = true
		}
	}
	if !foundTooLarge {
		t.Fatalf("expected a PropertyTooLarge error, got %v", errs)
	}
	if len(props) != 1 || props[0].Name != "ok" {
		t.Fatalf("expected parser to resync and recover the next property, got %+v", props)
	}
}

func TestUnknownTypeTag(t *testing.T) {
	p := New(0)
	_, errs := feedAll(t, p, `<property for="n"><frobnicate>v</frobnicate></property>`)
	if len(errs) == 0 {
		t.Fatal("expected an error for an unrecognised type tag")
	}
}

func TestMismatchedClosingTag(t *testing.T) {
	p := New(0)
	props, errs := feedAll(t, p, `<property for="n"><string>v</number></property><property for="ok"><string>v</string></property>`)
	if len(errs) == 0 {
		t.Fatal("expected an error for a mismatched closing tag")
	}
	if len(props) != 1 || props[0].Name != "ok" {
		t.Fatalf("expected recovery to the next property, got %+v", props)
	}
}
