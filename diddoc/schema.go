package diddoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned by Load when external input does not match
// the structural document schema.
var ErrSchemaViolation = errors.New("did document schema violation")

// documentSchema is the structural JSON schema every externally loaded
// document is validated against before being adopted.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["@context", "id"],
  "properties": {
    "@context": {
      "type": "array",
      "items": { "type": "string" },
      "minItems": 1
    },
    "id": { "type": "string", "pattern": "^did:" },
    "alias": { "type": "string" },
    "controller": { "type": "array", "items": { "type": "string" } },
    "alsoKnownAs": { "type": "array", "items": { "type": "string" } },
    "verificationMethod": {
      "type": "array",
      "items": { "$ref": "#/definitions/verificationMethod" }
    },
    "authentication": {
      "type": "array",
      "items": { "$ref": "#/definitions/relationship" }
    },
    "assertionMethod": {
      "type": "array",
      "items": { "$ref": "#/definitions/relationship" }
    },
    "keyAgreement": {
      "type": "array",
      "items": { "$ref": "#/definitions/relationship" }
    },
    "service": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type", "serviceEndpoint"],
        "properties": {
          "id": { "type": "string" },
          "type": { "type": "string" },
          "serviceEndpoint": {
            "type": "object",
            "required": ["uri"],
            "properties": {
              "uri": { "type": "string" },
              "routingKeys": { "type": "array", "items": { "type": "string" } },
              "communicationChannels": { "type": "array", "items": { "type": "string" } }
            }
          }
        }
      }
    }
  },
  "definitions": {
    "verificationMethod": {
      "type": "object",
      "required": ["id", "type", "controller", "publicKeyJwk"],
      "properties": {
        "id": { "type": "string" },
        "type": { "type": "string" },
        "controller": { "type": "string" },
        "publicKeyJwk": {
          "type": "object",
          "required": ["kty"],
          "properties": {
            "kty": { "type": "string" },
            "crv": { "type": "string" },
            "x": { "type": "string" },
            "y": { "type": "string" },
            "kid": { "type": "string" }
          }
        }
      }
    },
    "relationship": {
      "oneOf": [
        { "type": "string" },
        { "$ref": "#/definitions/verificationMethod" }
      ]
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Load validates raw external input against the document schema and adopts it
// as a Document, bypassing the append-only builder state. It fails with
// ErrSchemaViolation on any structural mismatch.
func Load(raw []byte) (*Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(details, "; "))
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return &doc, nil
}
