package mongostore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/decentrl/decentrl-go/diddoc"
	"github.com/decentrl/decentrl-go/registry"
)

// DID documents are stored as their JSON bytes: the document model carries
// custom JSON marshalling for the string-or-object relationship union that
// bson would not preserve.
func documentRowFrom(record registry.Record) (documentRow, error) {
	docJSON, err := json.Marshal(record.Document)
	if err != nil {
		return documentRow{}, fmt.Errorf("failed to marshal did document: %w", err)
	}
	return documentRow{
		Did:       record.Did,
		Document:  docJSON,
		Signature: record.Signature,
		Version:   record.Version,
	}, nil
}

func recordFrom(row documentRow) (*registry.Record, error) {
	var doc diddoc.Document
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal did document: %w", err)
	}
	return &registry.Record{
		Did:       row.Did,
		Document:  doc,
		Signature: row.Signature,
		Version:   row.Version,
	}, nil
}

func timeFromUnixNano(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}
