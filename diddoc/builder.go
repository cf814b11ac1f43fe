package diddoc

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingID is returned by Build when no document id was set.
	ErrMissingID = errors.New("document id is missing")

	// ErrDuplicateKeyID is returned when a verification-method id appears more
	// than once across the key-bearing sections.
	ErrDuplicateKeyID = errors.New("duplicate verification method id")
)

// suiteContexts maps verification-method types to the security-suite context
// URI that must accompany them in @context.
var suiteContexts = map[string]string{
	TypeJSONWebKey2020: ContextJWS2020,
}

// Builder constructs DID documents append-only. Every Add/Set method mutates
// the internal partial document and returns the builder for chaining; Build
// validates and derives @context.
type Builder struct {
	doc Document
	log zerolog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for non-fatal construction warnings.
func WithLogger(log zerolog.Logger) BuilderOption {
	return func(b *Builder) {
		b.log = log
	}
}

// NewBuilder returns an empty document builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetID sets the document id.
func (b *Builder) SetID(id string) *Builder {
	b.doc.ID = id
	return b
}

// SetAlias sets the document alias.
func (b *Builder) SetAlias(alias string) *Builder {
	b.doc.Alias = alias
	return b
}

// AddController appends a controller DID.
func (b *Builder) AddController(controller string) *Builder {
	b.doc.Controller = append(b.doc.Controller, controller)
	return b
}

// AddAlsoKnownAs appends an alsoKnownAs entry.
func (b *Builder) AddAlsoKnownAs(uri string) *Builder {
	b.doc.AlsoKnownAs = append(b.doc.AlsoKnownAs, uri)
	return b
}

// AddVerificationMethod appends an entry to the verificationMethod section.
func (b *Builder) AddVerificationMethod(method VerificationMethod) *Builder {
	b.doc.VerificationMethod = append(b.doc.VerificationMethod, method)
	return b
}

// AddAuthentication appends an authentication relationship.
func (b *Builder) AddAuthentication(rel VerificationRelationship) *Builder {
	b.doc.Authentication = append(b.doc.Authentication, rel)
	return b
}

// AddAssertionMethod appends an assertionMethod relationship.
func (b *Builder) AddAssertionMethod(rel VerificationRelationship) *Builder {
	b.doc.AssertionMethod = append(b.doc.AssertionMethod, rel)
	return b
}

// AddKeyAgreement appends a keyAgreement relationship.
func (b *Builder) AddKeyAgreement(rel VerificationRelationship) *Builder {
	b.doc.KeyAgreement = append(b.doc.KeyAgreement, rel)
	return b
}

// AddServiceEndpoint appends a service entry.
func (b *Builder) AddServiceEndpoint(service Service) *Builder {
	b.doc.Service = append(b.doc.Service, service)
	return b
}

// Validate checks that every verification-method id across the four
// key-bearing sections is unique within the document.
func (b *Builder) Validate() error {
	seen := make(map[string]struct{})

	check := func(id string) error {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKeyID, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for _, method := range b.doc.VerificationMethod {
		if err := check(method.ID); err != nil {
			return err
		}
	}
	for _, section := range [][]VerificationRelationship{b.doc.Authentication, b.doc.AssertionMethod, b.doc.KeyAgreement} {
		for _, rel := range section {
			if rel.Method == nil {
				// String references point at verificationMethod entries
				// already counted above.
				continue
			}
			if err := check(rel.Method.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// generateContext derives @context: the base DID context plus, once per
// suite, the context URI for every inline verification-method type present.
// Unknown method types produce a warning, not a failure.
func (b *Builder) generateContext() []string {
	context := []string{ContextDIDV1}
	added := make(map[string]struct{})

	addSuite := func(methodType string) {
		suite, ok := suiteContexts[methodType]
		if !ok {
			b.log.Warn().
				Str("type", methodType).
				Msg("no known context suite for verification method type")
			return
		}
		if _, ok := added[suite]; ok {
			return
		}
		added[suite] = struct{}{}
		context = append(context, suite)
	}

	for _, method := range b.doc.VerificationMethod {
		addSuite(method.Type)
	}
	for _, section := range [][]VerificationRelationship{b.doc.Authentication, b.doc.AssertionMethod, b.doc.KeyAgreement} {
		for _, rel := range section {
			if rel.Method != nil {
				addSuite(rel.Method.Type)
			}
		}
	}
	return context
}

// Build validates the partial document, derives @context and returns the
// completed document.
func (b *Builder) Build() (*Document, error) {
	if b.doc.ID == "" {
		return nil, ErrMissingID
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	doc := b.doc
	doc.Context = b.generateContext()
	return &doc, nil
}
