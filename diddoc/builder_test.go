package diddoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequiresID(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestBuildGeneratesContext(t *testing.T) {
	signing := testMethod("sig")
	encryption := testMethod("enc")

	doc, err := NewBuilder().
		SetID(testDid).
		AddVerificationMethod(signing).
		AddAuthentication(NewReference(signing.ID)).
		AddKeyAgreement(NewInline(encryption)).
		Build()
	require.NoError(t, err)

	// One JWS2020 entry regardless of how many JsonWebKey2020 methods exist.
	assert.Equal(t, []string{ContextDIDV1, ContextJWS2020}, doc.Context)
}

func TestBuildContextWithoutMethods(t *testing.T) {
	doc, err := NewBuilder().SetID(testDid).Build()
	require.NoError(t, err)
	assert.Equal(t, []string{ContextDIDV1}, doc.Context)
}

func TestBuildRejectsDuplicateKeyIDs(t *testing.T) {
	method := testMethod("dup")

	tests := []struct {
		name  string
		build func() (*Document, error)
	}{
		{
			name: "within verificationMethod",
			build: func() (*Document, error) {
				return NewBuilder().
					SetID(testDid).
					AddVerificationMethod(method).
					AddVerificationMethod(method).
					Build()
			},
		},
		{
			name: "across verificationMethod and keyAgreement",
			build: func() (*Document, error) {
				return NewBuilder().
					SetID(testDid).
					AddVerificationMethod(method).
					AddKeyAgreement(NewInline(method)).
					Build()
			},
		},
		{
			name: "across authentication and assertionMethod",
			build: func() (*Document, error) {
				return NewBuilder().
					SetID(testDid).
					AddAuthentication(NewInline(method)).
					AddAssertionMethod(NewInline(method)).
					Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, ErrDuplicateKeyID)
		})
	}
}

func TestBuildAllowsReferenceToInlineMethod(t *testing.T) {
	method := testMethod("sig")

	// A string reference to an existing method is not a duplicate.
	doc, err := NewBuilder().
		SetID(testDid).
		AddVerificationMethod(method).
		AddAuthentication(NewReference(method.ID)).
		AddAssertionMethod(NewReference(method.ID)).
		Build()
	require.NoError(t, err)
	assert.Len(t, doc.Authentication, 1)
	assert.Len(t, doc.AssertionMethod, 1)
}

func TestBuilderCarriesMetadataSections(t *testing.T) {
	doc, err := NewBuilder().
		SetID(testDid).
		SetAlias("alice").
		AddController("did:web:a.example:identity:root").
		AddAlsoKnownAs("https://alice.example").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "alice", doc.Alias)
	assert.Equal(t, []string{"did:web:a.example:identity:root"}, doc.Controller)
	assert.Equal(t, []string{"https://alice.example"}, doc.AlsoKnownAs)
}
