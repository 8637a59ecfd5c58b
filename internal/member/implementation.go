// internal/member/implementation.go
package member

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by FindByPhone when the public lookup rate
// limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// service implements the Service interface.
//
// In mirrored mode (local-file storage) the collection is loaded once at
// construction and kept in memory; reads are served from the mirror and the
// mirror is only replaced after a successful persist, so a failed save never
// leaves memory and disk disagreeing. In non-mirrored mode every operation
// does a full read-modify-write against the backend, and the backend's
// version token is the only concurrency guard.
type service struct {
	backend Backend
	limiter *rate.Limiter
	tracer  trace.Tracer

	mu       sync.RWMutex
	mirrored bool
	members  []Member
	version  string
}

// NewService creates a new member store backed by backend. When mirrored is
// true the collection is primed from the backend and served from memory.
func NewService(ctx context.Context, backend Backend, mirrored bool) (Service, error) {
	s := &service{
		backend:  backend,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 20),
		tracer:   otel.Tracer("tongbuying/member"),
		mirrored: mirrored,
	}

	if mirrored {
		members, version, err := backend.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to prime member mirror: %w", err)
		}
		s.members = members
		s.version = version
	}

	return s, nil
}

// ListMembers returns all members in storage order.
func (s *service) ListMembers(ctx context.Context) ([]Member, error) {
	members, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	return members, nil
}

// FindByPhone returns the first member whose phones contain an exact match.
// The query is not normalized; lookup is case and whitespace sensitive.
func (s *service) FindByPhone(ctx context.Context, phone string) (*Member, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	members, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	for i := range members {
		for _, p := range members[i].Phones {
			if p == phone {
				return &members[i], nil
			}
		}
	}
	return nil, ErrMemberNotFound
}

// FindByID returns the member with the given id.
func (s *service) FindByID(ctx context.Context, id int) (*Member, error) {
	members, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	for i := range members {
		if members[i].ID == id {
			return &members[i], nil
		}
	}
	return nil, ErrMemberNotFound
}

// UpsertMember creates a new member when input.ID is zero, otherwise fully
// replaces the mutable fields of the matching member. CreatedAt is preserved
// on update; UpdatedAt is always set to now.
func (s *service) UpsertMember(ctx context.Context, input UpsertInput) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "member.upsert",
		trace.WithAttributes(attribute.Int("member.id", input.ID)),
	)
	defer span.End()

	now := timestamp()
	var result Member

	message := fmt.Sprintf("Update member %d", input.ID)
	if input.ID == 0 {
		message = fmt.Sprintf("Add member %s", input.Nickname)
	}

	err := s.mutate(ctx, message, func(members []Member) ([]Member, error) {
		if input.ID != 0 {
			idx := indexByID(members, input.ID)
			if idx == -1 {
				return nil, ErrMemberNotFound
			}
			createdAt := members[idx].CreatedAt
			if createdAt == "" {
				createdAt = now
			}
			members[idx] = Member{
				ID:               input.ID,
				Nickname:         input.Nickname,
				Phones:           input.Phones,
				MembershipExpiry: input.MembershipExpiry,
				MembershipFee:    input.MembershipFee,
				Benefits:         orEmpty(input.Benefits),
				Courses:          orEmpty(input.Courses),
				CreatedAt:        createdAt,
				UpdatedAt:        now,
			}
			result = members[idx]
			return members, nil
		}

		newID := 1
		for _, m := range members {
			if m.ID >= newID {
				newID = m.ID + 1
			}
		}
		result = Member{
			ID:               newID,
			Nickname:         input.Nickname,
			Phones:           input.Phones,
			MembershipExpiry: input.MembershipExpiry,
			MembershipFee:    input.MembershipFee,
			Benefits:         orEmpty(input.Benefits),
			Courses:          orEmpty(input.Courses),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return append(members, result), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("member.id", result.ID))
	return &result, nil
}

// DeleteMember removes exactly one member. Deletion is immediate and
// irreversible from the store's perspective.
func (s *service) DeleteMember(ctx context.Context, id int) error {
	ctx, span := s.tracer.Start(ctx, "member.delete",
		trace.WithAttributes(attribute.Int("member.id", id)),
	)
	defer span.End()

	err := s.mutate(ctx, fmt.Sprintf("Delete member %d", id), func(members []Member) ([]Member, error) {
		idx := indexByID(members, id)
		if idx == -1 {
			return nil, ErrMemberNotFound
		}
		return append(members[:idx], members[idx+1:]...), nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// UpdateBenefits replaces only the benefits list of the matching member,
// leaving courses untouched.
func (s *service) UpdateBenefits(ctx context.Context, id int, benefits []Entitlement) error {
	ctx, span := s.tracer.Start(ctx, "member.update_benefits",
		trace.WithAttributes(attribute.Int("member.id", id)),
	)
	defer span.End()

	err := s.mutate(ctx, fmt.Sprintf("Update benefits for member %d", id), func(members []Member) ([]Member, error) {
		idx := indexByID(members, id)
		if idx == -1 {
			return nil, ErrMemberNotFound
		}
		members[idx].Benefits = orEmpty(benefits)
		members[idx].UpdatedAt = timestamp()
		return members, nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Flush persists the current mirror. It is a no-op for backends that are
// written through on every mutation.
func (s *service) Flush(ctx context.Context) error {
	if !s.mirrored {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.backend.Save(ctx, s.members, s.version, "Flush members data")
	if err != nil {
		persistFailures.Inc()
		return fmt.Errorf("failed to persist members: %w", err)
	}
	s.version = version
	return nil
}

// snapshot returns a defensive copy of the current collection and its
// version token.
func (s *service) snapshot(ctx context.Context) ([]Member, string, error) {
	if s.mirrored {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return cloneMembers(s.members), s.version, nil
	}
	return s.backend.Load(ctx)
}

// mutate runs fn over a copy of the collection and persists the result. The
// mirror is only updated after the backend reports success, so persist
// failures never partially apply.
func (s *service) mutate(ctx context.Context, message string, fn func([]Member) ([]Member, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		members []Member
		version string
		err     error
	)
	if s.mirrored {
		members = cloneMembers(s.members)
		version = s.version
	} else {
		members, version, err = s.backend.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load members: %w", err)
		}
	}

	updated, err := fn(members)
	if err != nil {
		return err
	}

	newVersion, err := s.backend.Save(ctx, updated, version, message)
	if err != nil {
		persistFailures.Inc()
		return fmt.Errorf("failed to persist members: %w", err)
	}

	if s.mirrored {
		s.members = updated
		s.version = newVersion
	}
	return nil
}

func indexByID(members []Member, id int) int {
	for i := range members {
		if members[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMembers(members []Member) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		m.Phones = append([]string(nil), m.Phones...)
		m.Benefits = append([]Entitlement(nil), m.Benefits...)
		m.Courses = append([]Entitlement(nil), m.Courses...)
		out[i] = m
	}
	return out
}

func orEmpty(es []Entitlement) []Entitlement {
	if es == nil {
		return []Entitlement{}
	}
	return es
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
