package models

import (
	"encoding/json"
	"fmt"
)

// EncodeBankMovements turns a bank set into subcollection documents.
func EncodeBankMovements(movements []*BankMovement) ([]MovementDocument, error) {
	docs := make([]MovementDocument, 0, len(movements))
	for i, m := range movements {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode bank movement %s: %w", m.ID, err)
		}
		docs = append(docs, MovementDocument{ID: m.ID, Position: i, Data: data})
	}
	return docs, nil
}

// EncodeInternalMovements turns an internal set into subcollection documents.
func EncodeInternalMovements(movements []*InternalMovement) ([]MovementDocument, error) {
	docs := make([]MovementDocument, 0, len(movements))
	for i, m := range movements {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode internal movement %s: %w", m.ID, err)
		}
		docs = append(docs, MovementDocument{ID: m.ID, Position: i, Data: data})
	}
	return docs, nil
}

// DecodeBankMovements restores a bank set. The result is never nil.
func DecodeBankMovements(docs []MovementDocument) ([]*BankMovement, error) {
	out := make([]*BankMovement, 0, len(docs))
	for _, doc := range docs {
		m := &BankMovement{}
		if err := json.Unmarshal(doc.Data, m); err != nil {
			return nil, fmt.Errorf("decode bank movement %s: %w", doc.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// DecodeInternalMovements restores an internal set. The result is never nil.
func DecodeInternalMovements(docs []MovementDocument) ([]*InternalMovement, error) {
	out := make([]*InternalMovement, 0, len(docs))
	for _, doc := range docs {
		m := &InternalMovement{}
		if err := json.Unmarshal(doc.Data, m); err != nil {
			return nil, fmt.Errorf("decode internal movement %s: %w", doc.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}
