package model

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

const (
	// FieldID is the reserved entity identifier field.
	FieldID = "_id"
	// FieldACL is the reserved access control field.
	FieldACL = "_acl"
	// FieldKMD is the reserved metadata field.
	FieldKMD = "_kmd"
)

var (
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,128}$`)
)

func CheckDocumentID(id string) bool {
	return idRegex.MatchString(id)
}

// Document is an opaque JSON entity.
//
//	"_id" field is reserved for the entity ID.
//	"_acl" field is reserved for the access control list.
//	"_kmd" field is reserved for entity metadata (lmt, ect, authtoken, local).
type Document map[string]interface{}

// Metadata is the typed view over the "_kmd" field.
type Metadata struct {
	LastModified string `json:"lmt,omitempty"`
	Created      string `json:"ect,omitempty"`
	AuthToken    string `json:"authtoken,omitempty"`
	Local        bool   `json:"local,omitempty"`
}

func (doc Document) ID() string {
	if id, ok := doc[FieldID].(string); ok {
		return id
	}
	return ""
}

func (doc Document) SetID(newID string) {
	doc[FieldID] = newID
}

// GenerateIDIfEmpty assigns a client-side ID to entities that have none and
// marks them as locally created.
func (doc Document) GenerateIDIfEmpty() bool {
	if doc.ID() != "" {
		return false
	}
	doc[FieldID] = uuid.New().String()
	kmd, _ := doc[FieldKMD].(map[string]interface{})
	if kmd == nil {
		kmd = map[string]interface{}{}
	}
	kmd["local"] = true
	doc[FieldKMD] = kmd
	return true
}

func (doc Document) ACL() map[string]interface{} {
	acl, _ := doc[FieldACL].(map[string]interface{})
	return acl
}

func (doc Document) Metadata() Metadata {
	var md Metadata
	raw, ok := doc[FieldKMD]
	if !ok {
		return md
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return md
	}
	_ = json.Unmarshal(b, &md)
	return md
}

func (doc Document) HasKey(key string) bool {
	_, exists := doc[key]
	return exists
}

// Clone returns a deep copy. Repositories hand out clones so callers never
// alias stored state.
func (doc Document) Clone() Document {
	if doc == nil {
		return nil
	}
	var out Document
	if err := deepcopy.Copy(&out, &doc); err == nil {
		return out
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return Document{}
	}
	out = Document{}
	_ = json.Unmarshal(b, &out)
	return out
}

// CloneAll deep copies a slice of documents.
func CloneAll(docs []Document) []Document {
	if docs == nil {
		return nil
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// Nested walks a dotted path ("a.b.c") through nested objects.
func Nested(doc map[string]interface{}, path string) (interface{}, bool) {
	if doc == nil {
		return nil, false
	}
	if v, ok := doc[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, part := range parts {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetNested writes value at a dotted path, creating intermediate objects.
func SetNested(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asObject(cur[part])
		if !ok {
			next = map[string]interface{}{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}
