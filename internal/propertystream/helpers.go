package propertystream

import (
	"github.com/brynmoore/streamstore/internal/propertymodel"
	"github.com/brynmoore/streamstore/internal/storeerr"
)

// completeProperty is called once a "</property>" closing tag has been
// fully matched. It decodes the accumulated type text into a Value and
// emits the property, or emits a non-fatal InvalidProperty error, per the
// policy that a bad individual property never aborts the whole request.
func (p *Parser) completeProperty() {
	v, err := propertymodel.DecodeValue(p.typeTag, string(p.text))
	if err != nil {
		p.pendingErrs = append(p.pendingErrs, err)
		return
	}
	p.pendingProps = append(p.pendingProps, propertymodel.Property{Name: p.propName, Value: v})
}

// failInvalid records a non-fatal InvalidProperty error for the property
// currently being parsed and resynchronises at the next "<property".
func (p *Parser) failInvalid(reason string) {
	p.pendingErrs = append(p.pendingErrs, storeerr.New(storeerr.InvalidProperty, reason))
	p.beginResync()
}

// failTooLarge records a non-fatal PropertyTooLarge error for the property
// currently being parsed. The caller is responsible for entering resync.
func (p *Parser) failTooLarge() {
	p.pendingErrs = append(p.pendingErrs, storeerr.New(storeerr.PropertyTooLarge,
		"property exceeds the configured buffer limit"))
}

// resetToOutside abandons whatever tag was being read (e.g. a malformed
// start like "<!" or "< ") and returns to scanning for the next '<' without
// recording an error; only content that looked like it was trying to be a
// property or item is worth reporting as invalid.
func (p *Parser) resetToOutside() {
	p.state = stOutside
}

// beginResync discards bytes until the next literal "<property", per the
// spec's required resynchronisation policy for an oversized or malformed
// property. Partial progress toward the literal survives across Feed calls.
func (p *Parser) beginResync() {
	p.state = stResync
	p.literalMatch = 0
	p.propertyBytes = 0
}

const resyncLiteral = "<property"

// matchResync advances the resync scan by one byte. On completing a match it
// resumes parsing as though "<property" had just been read at the top level,
// positioned to scan whatever follows (attributes, then '>').
func (p *Parser) matchResync(c byte) {
	if c == resyncLiteral[p.literalMatch] {
		p.literalMatch++
	} else if c == resyncLiteral[0] {
		p.literalMatch = 1
	} else {
		p.literalMatch = 0
	}
	if p.literalMatch != len(resyncLiteral) {
		return
	}
	p.literalMatch = 0
	p.propName = ""
	p.attrCtx = attrCtxProperty
	p.buf = p.buf[:0]
	p.propertyBytes = len(resyncLiteral)
	p.state = stAttrName
}
