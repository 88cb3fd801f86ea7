package models

import (
	"fmt"
	"strings"
	"unicode"
)

// TableRefKind distinguishes live entity collections from uploaded files.
type TableRefKind string

const (
	TableRefLive     TableRefKind = "entity"
	TableRefUploaded TableRefKind = "file"
)

// UploadedFileIDPrefix is the leading character reserved for generated file identifiers.
const UploadedFileIDPrefix = "_"

// maxLiveEntityIDLength bounds how long a legacy identifier may be and still be read as an entity name.
// Generated file identifiers (UUIDs) are always longer.
const maxLiveEntityIDLength = 32

// TableReference names a source table together with the backend it lives in.
// Construct with LiveTable or UploadedTable; the zero value is invalid.
type TableReference struct {
	Kind TableRefKind
	ID   string
}

// LiveTable references a tenant-scoped live entity collection.
func LiveTable(name string) TableReference {
	return TableReference{Kind: TableRefLive, ID: name}
}

// UploadedTable references a previously uploaded dataset file.
func UploadedTable(fileID string) TableReference {
	return TableReference{Kind: TableRefUploaded, ID: fileID}
}

// IsLive reports whether the reference targets the entity store.
func (r TableReference) IsLive() bool { return r.Kind == TableRefLive }

// IsUploaded reports whether the reference targets an uploaded file.
func (r TableReference) IsUploaded() bool { return r.Kind == TableRefUploaded }

func (r TableReference) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// ParseTableRefKind converts a wire value into a kind. Empty input returns "" and no error.
func ParseTableRefKind(s string) (TableRefKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "entity", "live":
		return TableRefLive, nil
	case "file", "upload", "uploaded":
		return TableRefUploaded, nil
	default:
		return "", fmt.Errorf("unknown table type %q", s)
	}
}

// ClassifyTableID guesses the backend of an untyped identifier.
//
// An identifier is read as a live entity name when it is short, starts with a lowercase
// letter, has no uppercase characters and does not start with UploadedFileIDPrefix.
// Everything else is treated as an uploaded file id. Only requests that omit the table
// type go through this; an uploaded file whose id looks like a short lowercase word is
// misclassified, so callers should send the type explicitly.
func ClassifyTableID(id string) TableReference {
	if looksLikeEntityName(id) {
		return LiveTable(id)
	}
	return UploadedTable(id)
}

func looksLikeEntityName(id string) bool {
	if id == "" || len(id) > maxLiveEntityIDLength {
		return false
	}
	if strings.HasPrefix(id, UploadedFileIDPrefix) {
		return false
	}
	first := rune(id[0])
	if first < 'a' || first > 'z' {
		return false
	}
	for _, r := range id {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
