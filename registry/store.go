// Package registry implements the DID registry side: verified publication
// and update of DID documents, their versioned persistence contract, and the
// HTTP surface peers resolve documents from.
package registry

import (
	"context"
	"errors"

	"github.com/decentrl/decentrl-go/diddoc"
)

var (
	// ErrUnknownDid is returned when no document is stored for a DID.
	ErrUnknownDid = errors.New("unknown did")

	// ErrDocumentExists is returned when publishing a DID that already has a
	// stored document; updates must go through Update.
	ErrDocumentExists = errors.New("did document already exists")
)

// Record is a stored DID document with the signature it was published under.
type Record struct {
	Did       string          `json:"did"`
	Document  diddoc.Document `json:"didDocument"`
	Signature string          `json:"signature"`
	Version   int64           `json:"version"`
}

// DocumentStore persists DID document records. Update increments the stored
// version.
type DocumentStore interface {
	Create(ctx context.Context, record Record) error
	FindByDid(ctx context.Context, did string) (*Record, error)
	Update(ctx context.Context, record Record) error
}
