// Package propertystream implements a resumable byte-oriented state machine
// that splits an arbitrary chunk boundary stream into validated property
// records. It deliberately does not use encoding/xml's Decoder: that type
// needs a blocking io.Reader, and Feed's contract is to consume whatever
// bytes are available right now and return immediately — a Decoder fed
// through an io.Pipe would deadlock waiting for more input that Feed has not
// received yet. The grammar accepted is also a small, fixed subset (an
// optional <item> wrapper around <property for="NAME"><TYPE>text</TYPE>
// </property> elements), so a hand-rolled scanner carrying its own partial
// state between calls is both necessary and simpler than a general XML
// parser would be.
package propertystream

import (
	"github.com/brynmoore/streamstore/internal/propertymodel"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

// DefaultMaxPropertyBytes is the default upper bound on one property
// element's buffered size before it is rejected as PropertyTooLarge.
const DefaultMaxPropertyBytes = 16 << 20

type state int

const (
	stOutside           state = iota // waiting for '<' at the top level (or inside <item>)
	stTagStart                       // just saw '<', maybe '/'
	stTagName                       // reading an element name
	stAttrName                       // reading an attribute name
	stAttrEq                        // saw attribute name, expecting '='
	stAttrQuote                     // saw '=', expecting an opening quote
	stAttrValue                      // inside a quoted attribute value
	stAfterPropertyOpen              // inside <property ...>, before its type child
	stTypeText                       // inside the type child's text content
	stTypeEntity                     // inside an &entity; reference in type text
	stCloseTagName                   // reading a name after "</"
	stAfterTypeClose                 // type child closed, expecting "</property>"
	stResync                         // discarding bytes until the next "<property"
)

// tagContext records what a '<' seen in stOutside/stAfterPropertyOpen is
// allowed to start, so the shared stTagStart/stTagName states know how to
// interpret the name once it is read.
type tagContext int

const (
	ctxTopLevel     tagContext = iota // expecting <item>, <property>, or </item>
	ctxPropertyBody                   // expecting the property's one type child
)

// attrContext distinguishes what an attribute belongs to, since stAttrName
// through stAttrValue is shared between parsing <property for="..."> and
// tolerating (and discarding) attributes on an <item> or type tag.
type attrContext int

const (
	attrCtxProperty attrContext = iota
	attrCtxTypeTagSkip
	attrCtxItemSkip
)

// Parser is a resumable property-stream scanner. The zero value is not
// usable; construct with New.
type Parser struct {
	maxPropertyBytes int

	state      state
	tagCtx     tagContext
	buf        []byte // current token: tag/attr name or quoted attribute value
	quote      byte
	closingTag bool
	attrCtx    attrContext

	attrName string
	propName string

	itemDepth int // 0 or 1: whether a top-level <item> wrapper is open

	typeTag string
	text    []byte
	entity  []byte

	literalMatch int // progress matching a fixed literal (resync or "</property>")

	propertyBytes int // bytes seen since the current property's '<' started

	pendingProps []propertymodel.Property
	pendingErrs  []error
}

// New creates a Parser with the given per-property size limit. A limit of 0
// uses DefaultMaxPropertyBytes.
func New(maxPropertyBytes int) *Parser {
	if maxPropertyBytes <= 0 {
		maxPropertyBytes = DefaultMaxPropertyBytes
	}
	return &Parser{maxPropertyBytes: maxPropertyBytes, state: stOutside}
}

// Feed consumes bytes and returns zero or more recognised properties and
// zero or more recoverable (non-fatal) errors. It never blocks.
func (p *Parser) Feed(data []byte) ([]propertymodel.Property, []error) {
	p.pendingProps = p.pendingProps[:0]
	p.pendingErrs = p.pendingErrs[:0]
	for _, c := range data {
		p.step(c)
	}
	return p.pendingProps, p.pendingErrs
}

// Finish signals end of input. It returns UnterminatedProperty if a property
// or item element was left open. Input that ends while the parser is
// skipping past an already-rejected property is not reported again.
func (p *Parser) Finish() error {
	if (p.state != stOutside && p.state != stResync) || p.itemDepth != 0 {
		return storeerr.New(storeerr.UnterminatedProperty, "input ended with an open element")
	}
	return nil
}

func (p *Parser) step(c byte) {
	if p.inElement() {
		p.propertyBytes++
		if p.propertyBytes > p.maxPropertyBytes {
			p.failTooLarge()
			p.beginResync()
			p.matchResync(c)
			return
		}
	}

	switch p.state {
	case stOutside:
		p.stepOutside(c)
	case stResync:
		p.matchResync(c)
	case stTagStart:
		p.stepTagStart(c)
	case stTagName:
		p.stepTagName(c)
	case stAttrName:
		p.stepAttrName(c)
	case stAttrEq:
		p.stepAttrEq(c)
	case stAttrQuote:
		p.stepAttrQuote(c)
	case stAttrValue:
		p.stepAttrValue(c)
	case stAfterPropertyOpen:
		p.stepAfterPropertyOpen(c)
	case stTypeText:
		p.stepTypeText(c)
	case stTypeEntity:
		p.stepTypeEntity(c)
	case stCloseTagName:
		p.stepCloseTagName(c)
	case stAfterTypeClose:
		p.stepAfterTypeClose(c)
	}
}

// inElement reports whether the parser is inside any started tag/element,
// i.e. past the '<' that could begin a property whose size must be bounded.
func (p *Parser) inElement() bool {
	return p.state != stOutside && p.state != stResync
}

func (p *Parser) stepOutside(c byte) {
	if c == '<' {
		p.buf = p.buf[:0]
		p.closingTag = false
		p.tagCtx = ctxTopLevel
		p.propertyBytes = 1
		p.state = stTagStart
	}
	// whitespace and stray text between elements is ignored
}

func (p *Parser) stepTagStart(c byte) {
	switch {
	case c == '/':
		p.closingTag = true
		p.state = stTagName
	case isNameByte(c):
		p.buf = append(p.buf, c)
		p.state = stTagName
	default:
		p.resetToOutside()
	}
}

func (p *Parser) stepTagName(c byte) {
	if isNameByte(c) {
		p.buf = append(p.buf, c)
		return
	}
	name := string(p.buf)
	p.buf = p.buf[:0]

	if p.closingTag {
		if p.tagCtx == ctxPropertyBody {
			p.failInvalid("property closed before its required type element")
			return
		}
		p.handleTopLevelClose(name, c)
		return
	}

	switch p.tagCtx {
	case ctxTopLevel:
		switch name {
		case "item":
			p.attrCtx = attrCtxItemSkip
		case "property":
			p.propName = ""
			p.attrCtx = attrCtxProperty
		default:
			p.failInvalid("unrecognised element <" + name + ">")
			return
		}
	case ctxPropertyBody:
		p.typeTag = name
		p.attrCtx = attrCtxTypeTagSkip
	}
	p.startAttrs(c)
}

// handleTopLevelClose processes a "</item>" closing tag seen while outside
// any property. Any other closing tag here is invalid.
func (p *Parser) handleTopLevelClose(name string, c byte) {
	if name != "item" {
		p.failInvalid("unexpected closing tag </" + name + ">")
		return
	}
	if p.itemDepth == 0 {
		p.failInvalid("</item> without a matching <item>")
		return
	}
	p.itemDepth--
	if c == '>' {
		p.state = stOutside
		return
	}
	p.resetToOutside()
}

// startAttrs transitions into attribute scanning given the byte immediately
// following the tag name.
func (p *Parser) startAttrs(c byte) {
	switch {
	case c == '>':
		p.onTagOpened()
	case isSpace(c):
		p.state = stAttrName
	default:
		p.failInvalid("malformed start tag")
	}
}

// onTagOpened fires when a start tag's '>' is reached, after any attributes.
func (p *Parser) onTagOpened() {
	switch p.attrCtx {
	case attrCtxItemSkip:
		p.itemDepth++
		p.state = stOutside
	case attrCtxProperty:
		if p.propName == "" {
			p.failInvalid(`<property> missing required "for" attribute`)
			return
		}
		p.state = stAfterPropertyOpen
	case attrCtxTypeTagSkip:
		p.text = p.text[:0]
		p.state = stTypeText
	}
}

func (p *Parser) stepAttrName(c byte) {
	if len(p.buf) == 0 {
		switch {
		case c == '>':
			p.onTagOpened()
		case isSpace(c):
			// whitespace between attributes
		case isNameByte(c):
			p.buf = append(p.buf, c)
		default:
			p.failInvalid("malformed attribute")
		}
		return
	}
	switch {
	case c == '=' || isSpace(c):
		p.attrName = string(p.buf)
		p.buf = p.buf[:0]
		p.state = stAttrEq
		if c == '=' {
			p.stepAttrEq(c)
		}
	case isNameByte(c):
		p.buf = append(p.buf, c)
	default:
		p.failInvalid("malformed attribute name")
	}
}

func (p *Parser) stepAttrEq(c byte) {
	switch {
	case c == '=':
		p.state = stAttrQuote
	case isSpace(c):
	case c == '>':
		p.onTagOpened()
	default:
		p.failInvalid("malformed attribute")
	}
}

func (p *Parser) stepAttrQuote(c byte) {
	switch {
	case c == '"' || c == '\'':
		p.quote = c
		p.buf = p.buf[:0]
		p.state = stAttrValue
	case isSpace(c):
	default:
		p.failInvalid("expected quoted attribute value")
	}
}

func (p *Parser) stepAttrValue(c byte) {
	if c == p.quote {
		value := unescapeText(string(p.buf))
		if p.attrCtx == attrCtxProperty && p.attrName == "for" {
			p.propName = value
		}
		p.buf = p.buf[:0]
		p.state = stAttrName
		return
	}
	p.buf = append(p.buf, c)
}

func (p *Parser) stepAfterPropertyOpen(c byte) {
	switch {
	case c == '<':
		p.buf = p.buf[:0]
		p.closingTag = false
		p.tagCtx = ctxPropertyBody
		p.state = stTagStart
	case isSpace(c):
	default:
		p.failInvalid("unexpected content before property's type element")
	}
}

func (p *Parser) stepTypeText(c byte) {
	switch c {
	case '<':
		p.buf = p.buf[:0]
		p.closingTag = false
		p.state = stCloseTagName
	case '&':
		p.entity = p.entity[:0]
		p.state = stTypeEntity
	default:
		p.text = append(p.text, c)
	}
}

func (p *Parser) stepTypeEntity(c byte) {
	if c == ';' {
		resolved, ok := resolveEntity(string(p.entity))
		if !ok {
			p.failInvalid("unknown entity reference &" + string(p.entity) + ";")
			return
		}
		p.text = append(p.text, resolved...)
		p.state = stTypeText
		return
	}
	p.entity = append(p.entity, c)
	if len(p.entity) > 32 {
		p.failInvalid("malformed entity reference")
	}
}

func (p *Parser) stepCloseTagName(c byte) {
	if !p.closingTag {
		if c == '/' {
			p.closingTag = true
			return
		}
		p.failInvalid("unexpected element inside type text")
		return
	}
	if isNameByte(c) {
		p.buf = append(p.buf, c)
		return
	}
	if c != '>' {
		if isSpace(c) {
			return
		}
		p.failInvalid("malformed closing tag")
		return
	}
	name := string(p.buf)
	if name != p.typeTag {
		p.failInvalid("mismatched closing tag </" + name + ">")
		return
	}
	p.literalMatch = 0
	p.state = stAfterTypeClose
}

const closePropertyLiteral = "</property>"

func (p *Parser) stepAfterTypeClose(c byte) {
	if p.literalMatch == 0 && isSpace(c) {
		return
	}
	if c != closePropertyLiteral[p.literalMatch] {
		p.failInvalid("expected closing </property> after the type element")
		return
	}
	p.literalMatch++
	if p.literalMatch == len(closePropertyLiteral) {
		p.completeProperty()
		p.literalMatch = 0
		p.state = stOutside
	}
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' || c == '.' || c == ':' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
