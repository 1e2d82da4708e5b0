//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"time"
)

// Collection names served by the document store.
const (
	CollectionAdmins = "admins"
	CollectionUsers  = "users"
)

// Document is a keyed record read from the document store. Data holds the collection's
// JSON encoding of the record (AdminMembership, UserProfile).
type Document struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Data       json.RawMessage `json:"data"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}
