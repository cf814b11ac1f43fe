// Package diddoc models W3C DID documents: validated, append-only
// construction via a builder, structural schema validation on load, and
// helpers for resolving verification-method references.
package diddoc

import (
	"encoding/json"
	"fmt"

	"github.com/decentrl/decentrl-go/jwk"
)

// Context URIs. The base DID context is always present; suite contexts are
// derived from the verification-method types used in the document.
const (
	ContextDIDV1   = "https://www.w3.org/ns/did/v1"
	ContextJWS2020 = "https://w3id.org/security/suites/jws-2020/v1"
)

// TypeJSONWebKey2020 is the only verification-method type the protocol emits.
const TypeJSONWebKey2020 = "JsonWebKey2020"

// Service endpoint type tags.
const (
	ServiceTypeRegistry              = "DecentrlRegistry"
	ServiceTypeMediatorCommunication = "DecentrlMediatorCommunicationService"
	ServiceTypeMediatorEventLog      = "DecentrlMediatorEventLogService"
)

// Document is a DID document.
type Document struct {
	Context            []string                   `json:"@context"`
	ID                 string                     `json:"id"`
	Alias              string                     `json:"alias,omitempty"`
	Controller         []string                   `json:"controller,omitempty"`
	AlsoKnownAs        []string                   `json:"alsoKnownAs,omitempty"`
	VerificationMethod []VerificationMethod       `json:"verificationMethod,omitempty"`
	Authentication     []VerificationRelationship `json:"authentication,omitempty"`
	AssertionMethod    []VerificationRelationship `json:"assertionMethod,omitempty"`
	KeyAgreement       []VerificationRelationship `json:"keyAgreement,omitempty"`
	Service            []Service                  `json:"service,omitempty"`
}

// VerificationMethod is a published key usable for a specific purpose. The id
// is conventionally `${did}#${kid}`.
type VerificationMethod struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Controller   string  `json:"controller"`
	PublicKeyJwk jwk.JWK `json:"publicKeyJwk"`
}

// VerificationRelationship is the string-or-object union used by the
// authentication, assertionMethod and keyAgreement sections: either a
// reference into verificationMethod or an inline method. Exactly one of the
// two cases is set.
type VerificationRelationship struct {
	Reference string
	Method    *VerificationMethod
}

// NewReference builds the reference case of the union.
func NewReference(id string) VerificationRelationship {
	return VerificationRelationship{Reference: id}
}

// NewInline builds the inline-method case of the union.
func NewInline(method VerificationMethod) VerificationRelationship {
	return VerificationRelationship{Method: &method}
}

// MarshalJSON encodes the reference case as a bare string and the inline case
// as a verification-method object.
func (r VerificationRelationship) MarshalJSON() ([]byte, error) {
	if r.Method != nil {
		return json.Marshal(r.Method)
	}
	return json.Marshal(r.Reference)
}

// UnmarshalJSON accepts either a string reference or an inline object.
func (r *VerificationRelationship) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		r.Reference = ref
		r.Method = nil
		return nil
	}
	var method VerificationMethod
	if err := json.Unmarshal(data, &method); err != nil {
		return fmt.Errorf("verification relationship is neither a reference nor a method: %w", err)
	}
	r.Reference = ""
	r.Method = &method
	return nil
}

// Service is a typed service-endpoint entry.
type Service struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	ServiceEndpoint ServiceEndpoint `json:"serviceEndpoint"`
}

// ServiceEndpoint carries the endpoint URI, the verification-method ids
// usable for envelope encryption towards the service, and, for communication
// services, the channels the service supports.
type ServiceEndpoint struct {
	URI                   string   `json:"uri"`
	RoutingKeys           []string `json:"routingKeys,omitempty"`
	CommunicationChannels []string `json:"communicationChannels,omitempty"`
}

// FindVerificationMethod returns the verification method with the given id,
// searching the verificationMethod section and every inline relationship.
func (d *Document) FindVerificationMethod(id string) (*VerificationMethod, bool) {
	for i := range d.VerificationMethod {
		if d.VerificationMethod[i].ID == id {
			return &d.VerificationMethod[i], true
		}
	}
	for _, section := range [][]VerificationRelationship{d.Authentication, d.AssertionMethod, d.KeyAgreement} {
		for _, rel := range section {
			if rel.Method != nil && rel.Method.ID == id {
				return rel.Method, true
			}
		}
	}
	return nil, false
}

// Resolve returns the verification method a relationship points at: the
// inline method itself, or the referenced entry from verificationMethod.
func (d *Document) Resolve(rel VerificationRelationship) (*VerificationMethod, bool) {
	if rel.Method != nil {
		return rel.Method, true
	}
	for i := range d.VerificationMethod {
		if d.VerificationMethod[i].ID == rel.Reference {
			return &d.VerificationMethod[i], true
		}
	}
	return nil, false
}

// KeyAgreementMethods resolves every keyAgreement relationship to a concrete
// verification method, skipping dangling references.
func (d *Document) KeyAgreementMethods() []*VerificationMethod {
	methods := make([]*VerificationMethod, 0, len(d.KeyAgreement))
	for _, rel := range d.KeyAgreement {
		if method, ok := d.Resolve(rel); ok {
			methods = append(methods, method)
		}
	}
	return methods
}

// FirstKeyAgreement returns the document's first resolvable key-agreement
// method, used by peers to address encrypted envelopes.
func (d *Document) FirstKeyAgreement() (*VerificationMethod, bool) {
	methods := d.KeyAgreementMethods()
	if len(methods) == 0 {
		return nil, false
	}
	return methods[0], true
}

// FindService returns the first service entry with the given type tag.
func (d *Document) FindService(serviceType string) (*Service, bool) {
	for i := range d.Service {
		if d.Service[i].Type == serviceType {
			return &d.Service[i], true
		}
	}
	return nil, false
}
