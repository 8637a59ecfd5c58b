// internal/member/service.go
package member

import (
	"context"
)

// Service defines the interface for the member store.
type Service interface {
	ListMembers(ctx context.Context) ([]Member, error)
	FindByPhone(ctx context.Context, phone string) (*Member, error)
	FindByID(ctx context.Context, id int) (*Member, error)
	UpsertMember(ctx context.Context, input UpsertInput) (*Member, error)
	DeleteMember(ctx context.Context, id int) error
	UpdateBenefits(ctx context.Context, id int, benefits []Entitlement) error
	Flush(ctx context.Context) error
}

// Backend persists the full member collection. Load returns the stored
// members together with an opaque version token; Save requires the token it
// was read with and returns the token of the state it wrote. Backends with
// no concurrency token return an empty string.
type Backend interface {
	Load(ctx context.Context) (members []Member, version string, err error)
	Save(ctx context.Context, members []Member, version, message string) (newVersion string, err error)
}
