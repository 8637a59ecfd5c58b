// internal/member/domain.go
package member

import (
	"errors"
	"regexp"
)

// ErrMemberNotFound is returned when no member matches the given id or phone.
// It is a normal business outcome, not a server failure.
var ErrMemberNotFound = errors.New("member not found")

// phonePattern matches mainland mobile numbers: leading 1, second digit 3-9,
// eleven digits total.
var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidPhone reports whether s is a well-formed phone number.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Entitlement is a redeemable perk or course slot.
type Entitlement struct {
	Text string `json:"text"`
	Used bool   `json:"used"`
}

// Member represents one customer account.
type Member struct {
	ID               int           `json:"id"`
	Nickname         string        `json:"nickname"`
	Phones           []string      `json:"phones"`
	MembershipExpiry string        `json:"membershipExpiry"`
	MembershipFee    int           `json:"membershipFee"`
	Benefits         []Entitlement `json:"benefits"`
	Courses          []Entitlement `json:"courses"`
	CreatedAt        string        `json:"createdAt"`
	UpdatedAt        string        `json:"updatedAt"`
}

// Document is the top-level persisted shape of the data file.
type Document struct {
	Members     []Member `json:"members"`
	LastUpdated string   `json:"lastUpdated"`
}

// UpsertInput carries the fields of a create or update request. A zero ID
// means create; a non-zero ID must match an existing member.
type UpsertInput struct {
	ID               int           `json:"id"`
	Nickname         string        `json:"nickname"`
	Phones           []string      `json:"phones"`
	MembershipExpiry string        `json:"membershipExpiry"`
	MembershipFee    int           `json:"membershipFee"`
	Benefits         []Entitlement `json:"benefits"`
	Courses          []Entitlement `json:"courses"`
}
