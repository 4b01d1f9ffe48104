package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Permission is a named capability of the form "<resource>:<action>".
type Permission struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the Permission model
func (Permission) TableName() string {
	return "permissions"
}

// Resource returns the resource half of the permission identifier
func (p Permission) Resource() string {
	resource, _, _ := ParsePermissionID(p.ID)
	return resource
}

// ParsePermissionID splits an identifier on its first colon.
func ParsePermissionID(id string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(id, ":")
	if !ok || resource == "" || action == "" {
		return "", "", false
	}
	return resource, action, true
}

// PermissionRefKind distinguishes the shapes a role's permission entry can take.
type PermissionRefKind int

const (
	PermissionRefInvalid PermissionRefKind = iota
	PermissionRefID
	PermissionRefObject
)

// PermissionRef is one entry of a role's permission list. Upstream services
// send either a bare identifier or a permission object; both collapse to the
// identifier when evaluated.
type PermissionRef struct {
	Kind PermissionRefKind
	ID   string

	// Only populated for PermissionRefObject.
	Name        string
	Description string
	Category    string
}

// RefID builds an identifier reference.
func RefID(id string) PermissionRef {
	if id == "" {
		return PermissionRef{}
	}
	return PermissionRef{Kind: PermissionRefID, ID: id}
}

// RefObject builds an object reference from a permission.
func RefObject(p Permission) PermissionRef {
	if p.ID == "" {
		return PermissionRef{}
	}
	return PermissionRef{
		Kind:        PermissionRefObject,
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
	}
}

// Identifier returns the permission id, or false for malformed entries.
func (r PermissionRef) Identifier() (string, bool) {
	if r.Kind == PermissionRefInvalid || r.ID == "" {
		return "", false
	}
	return r.ID, true
}

type permissionRefObject struct {
	ID          json.RawMessage `json:"id"`
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
	Category    json.RawMessage `json:"category"`
}

// UnmarshalJSON never fails on a well-formed JSON value: entries that are
// neither a non-empty string nor an object carrying a string id decode to an
// invalid ref so one bad entry does not poison the whole role.
func (r *PermissionRef) UnmarshalJSON(data []byte) error {
	*r = PermissionRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return nil
		}
		*r = RefID(id)
	case '{':
		var obj permissionRefObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		id, ok := rawString(obj.ID)
		if !ok || id == "" {
			return nil
		}
		name, _ := rawString(obj.Name)
		description, _ := rawString(obj.Description)
		category, _ := rawString(obj.Category)
		*r = PermissionRef{
			Kind:        PermissionRefObject,
			ID:          id,
			Name:        name,
			Description: description,
			Category:    category,
		}
	}
	return nil
}

// MarshalJSON writes identifiers as strings and objects as objects.
func (r PermissionRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case PermissionRefID:
		return json.Marshal(r.ID)
	case PermissionRefObject:
		return json.Marshal(struct {
			ID          string `json:"id"`
			Name        string `json:"name,omitempty"`
			Description string `json:"description,omitempty"`
			Category    string `json:"category,omitempty"`
		}{r.ID, r.Name, r.Description, r.Category})
	default:
		return []byte("null"), nil
	}
}

func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// PermissionRefs is a role's permission list as stored in a JSONB column.
type PermissionRefs []PermissionRef

// IDs returns the identifiers in order, skipping malformed entries.
func (refs PermissionRefs) IDs() []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if id, ok := ref.Identifier(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Invalid counts entries that carry no usable identifier.
func (refs PermissionRefs) Invalid() int {
	n := 0
	for _, ref := range refs {
		if _, ok := ref.Identifier(); !ok {
			n++
		}
	}
	return n
}

// Value implements driver.Valuer
func (refs PermissionRefs) Value() (driver.Value, error) {
	if refs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(refs)
}

// Scan implements sql.Scanner
func (refs *PermissionRefs) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*refs = PermissionRefs{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported permissions column type %T", src)
	}

	var out PermissionRefs
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode permissions column: %w", err)
	}
	*refs = out
	return nil
}
