package diddoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAcceptsBuiltDocument(t *testing.T) {
	signing := testMethod("sig")
	encryption := testMethod("enc")

	doc, err := NewBuilder().
		SetID(testDid).
		AddVerificationMethod(signing).
		AddAuthentication(NewReference(signing.ID)).
		AddKeyAgreement(NewInline(encryption)).
		AddServiceEndpoint(Service{
			ID:              testDid + "#registry",
			Type:            ServiceTypeRegistry,
			ServiceEndpoint: ServiceEndpoint{URI: "https://registry.example"},
		}).
		Build()
	require.NoError(t, err)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	loaded, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, loaded.ID)
	require.Len(t, loaded.KeyAgreement, 1)
	require.NotNil(t, loaded.KeyAgreement[0].Method)
	assert.Equal(t, encryption.ID, loaded.KeyAgreement[0].Method.ID)
	assert.Equal(t, doc.Authentication[0].Reference, loaded.Authentication[0].Reference)
}

func TestLoadRejectsStructuralViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "missing id",
			raw:  `{"@context":["https://www.w3.org/ns/did/v1"]}`,
		},
		{
			name: "id without did prefix",
			raw:  `{"@context":["https://www.w3.org/ns/did/v1"],"id":"https://a.example"}`,
		},
		{
			name: "missing context",
			raw:  `{"id":"did:web:a.example:identity:1"}`,
		},
		{
			name: "verification method without key",
			raw: `{
				"@context":["https://www.w3.org/ns/did/v1"],
				"id":"did:web:a.example:identity:1",
				"verificationMethod":[{"id":"did:web:a.example:identity:1#sig","type":"JsonWebKey2020","controller":"did:web:a.example:identity:1"}]
			}`,
		},
		{
			name: "service without endpoint uri",
			raw: `{
				"@context":["https://www.w3.org/ns/did/v1"],
				"id":"did:web:a.example:identity:1",
				"service":[{"id":"did:web:a.example:identity:1#r","type":"DecentrlRegistry","serviceEndpoint":{}}]
			}`,
		},
		{
			name: "not json",
			raw:  `not a document`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}
