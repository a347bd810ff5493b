// Package resource declares the collaborators the audit engine consumes but does not own:
// record storage, the caller identity, display labels and cache invalidation.
package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/types"
)

var (
	ErrNotFound    = errors.New("resource not found")
	ErrUnknownType = errors.New("unknown resource type")
)

type Type string

const (
	TypeFlights       Type = "flights"
	TypeTransfers     Type = "transfers"
	TypeParcels       Type = "parcels"
	TypeTranslations  Type = "translations"
	TypeOtherServices Type = "other_services"
)

func Types() []Type {
	return []Type{TypeFlights, TypeTransfers, TypeParcels, TypeTranslations, TypeOtherServices}
}

func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	return t, nil
}

func (t Type) Valid() bool {
	switch t {
	case TypeFlights, TypeTransfers, TypeParcels, TypeTranslations, TypeOtherServices:
		return true
	}
	return false
}

// Path is the UI path whose cached views depend on records of this type.
func (t Type) Path() string {
	return "/" + string(t)
}

// Ref identifies one record.
type Ref struct {
	Type Type
	ID   string
}

func (r Ref) String() string {
	return string(r.Type) + "/" + r.ID
}

// Store is the record storage for business resources. Write merges patch into the
// stored record and returns the post-image. Read and Write return ErrNotFound for
// missing records.
type Store interface {
	Read(ctx context.Context, ref Ref) (*fieldvalue.Object, error)
	Write(ctx context.Context, ref Ref, patch *fieldvalue.Object) (*fieldvalue.Object, error)
	Delete(ctx context.Context, ref Ref) error
}

type ActorProvider interface {
	CurrentActor(ctx context.Context) (types.Actor, error)
}

// Labeler resolves a human readable label for a record. Labels are informational only.
type Labeler interface {
	Label(ref Ref, fields *fieldvalue.Object) string
}

// Invalidator is notified after every successful mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, ref Ref)
}

// FieldLabeler picks the first non-empty field from Fields, falling back to the ref.
type FieldLabeler struct {
	Fields []string
}

func (l FieldLabeler) Label(ref Ref, fields *fieldvalue.Object) string {
	for _, name := range l.Fields {
		v := fields.Lookup(name)
		if v.IsNull() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ref.String()
}
