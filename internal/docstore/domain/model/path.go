package model

import (
	"strings"

	"carelog/internal/shared/errors"
)

// EntityKind enumerates the record types the store knows how to place.
type EntityKind int

const (
	KindUser EntityKind = iota
	KindKid
	KindAllergy
	KindMedicalCondition
	KindMedication
	KindEmergencyMedication
	KindSpecialistInfo
	KindRoutine
)

// RootCollection is the top of the ownership tree.
const RootCollection = "users"

// collectionNames are persisted; renaming one is a data migration.
var collectionNames = map[EntityKind]string{
	KindUser:                RootCollection,
	KindKid:                 "kids",
	KindAllergy:             "allergy",
	KindMedicalCondition:    "medicalCondition",
	KindMedication:          "medications",
	KindEmergencyMedication: "emergencyMedication",
	KindSpecialistInfo:      "specialistInfo",
	KindRoutine:             "routines",
}

// Kinds returns every entity kind in declaration order.
func Kinds() []EntityKind {
	return []EntityKind{
		KindUser, KindKid, KindAllergy, KindMedicalCondition,
		KindMedication, KindEmergencyMedication, KindSpecialistInfo, KindRoutine,
	}
}

// String returns the collection name of the kind.
func (k EntityKind) String() string {
	if name, ok := collectionNames[k]; ok {
		return name
	}
	return "unknown"
}

// RequiresOwner reports whether paths of this kind hang under a user document.
func (k EntityKind) RequiresOwner() bool {
	return k != KindUser
}

// KindFromCollection maps a persisted collection name back to its kind.
func KindFromCollection(name string) (EntityKind, bool) {
	for kind, n := range collectionNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// CollectionPath is an odd-length sequence of segments ending on a collection.
// The zero value is not a valid path; obtain one from Resolve or ParseCollectionPath.
type CollectionPath struct {
	kind     EntityKind
	owner    string
	segments []string
}

// Resolve maps an entity kind and owner key to its collection path.
func Resolve(kind EntityKind, ownerKey string) (CollectionPath, error) {
	name, ok := collectionNames[kind]
	if !ok {
		return CollectionPath{}, errors.NewConfigurationError("unknown entity kind").
			WithDetail("kind", int(kind))
	}
	if !kind.RequiresOwner() {
		return CollectionPath{kind: kind, segments: []string{name}}, nil
	}
	if strings.TrimSpace(ownerKey) == "" {
		return CollectionPath{}, errors.NewConfigurationError("owner key is required").
			WithDetail("kind", name)
	}
	if strings.Contains(ownerKey, "/") {
		return CollectionPath{}, errors.NewConfigurationError("owner key must not contain '/'").
			WithDetail("kind", name).
			WithDetail("owner", ownerKey)
	}
	return CollectionPath{
		kind:     kind,
		owner:    ownerKey,
		segments: []string{RootCollection, ownerKey, name},
	}, nil
}

// MustResolve is Resolve for keys known to be valid; it panics otherwise.
func MustResolve(kind EntityKind, ownerKey string) CollectionPath {
	p, err := Resolve(kind, ownerKey)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseCollectionPath accepts one of the persisted layouts, e.g. "users/u1/kids".
func ParseCollectionPath(path string) (CollectionPath, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	switch len(segments) {
	case 1:
		if segments[0] == RootCollection {
			return Resolve(KindUser, "")
		}
	case 3:
		if segments[0] != RootCollection {
			break
		}
		kind, ok := KindFromCollection(segments[2])
		if ok && kind.RequiresOwner() {
			return Resolve(kind, segments[1])
		}
	}
	return CollectionPath{}, errors.NewConfigurationError("not a known collection path").
		WithDetail("path", path)
}

// IsZero reports whether p was never resolved.
func (p CollectionPath) IsZero() bool {
	return len(p.segments) == 0
}

// Kind returns the entity kind stored under p.
func (p CollectionPath) Kind() EntityKind { return p.kind }

// Owner returns the owning user ID, empty for the root collection.
func (p CollectionPath) Owner() string { return p.owner }

// Segments returns a copy of the path segments.
func (p CollectionPath) Segments() []string {
	return append([]string(nil), p.segments...)
}

// String joins the segments with '/'.
func (p CollectionPath) String() string {
	return strings.Join(p.segments, "/")
}

// DocumentPath returns the path of document id inside p.
func (p CollectionPath) DocumentPath(id string) string {
	return p.String() + "/" + id
}

// Equal reports whether two paths name the same collection.
func (p CollectionPath) Equal(o CollectionPath) bool {
	return p.String() == o.String()
}

// ValidateDocumentID rejects IDs that cannot be stored as a single path segment.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewValidationError("document id is required")
	}
	if strings.Contains(id, "/") {
		return errors.NewValidationError("document id must not contain '/'").WithDetail("id", id)
	}
	return nil
}
