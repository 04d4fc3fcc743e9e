// Package permissions implements brand member permissions as a bit field.
package permissions

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// Set is a set of granted permissions, one bit per flag.
type Set uint64

const (
	ViewOrders Set = 1 << iota
	ManageOrders
	ManageProducts
	ManageBrand
	ManageContent
	ManageMembers
	ViewAnalytics
	SendMarketing
	ManageShipping

	// Owner implies every other flag.
	Owner Set = 1 << 62
)

// All is every flag except Owner.
const All = ViewOrders | ManageOrders | ManageProducts | ManageBrand | ManageContent |
	ManageMembers | ViewAnalytics | SendMarketing | ManageShipping

// Role presets used when inviting members.
const (
	RoleOwner   = Owner | All
	RoleManager = All &^ ManageMembers
	RoleStaff   = ViewOrders | ManageOrders | ManageProducts | ManageShipping
	RoleViewer  = ViewOrders | ViewAnalytics
)

var names = map[Set]string{
	ViewOrders:     "view_orders",
	ManageOrders:   "manage_orders",
	ManageProducts: "manage_products",
	ManageBrand:    "manage_brand",
	ManageContent:  "manage_content",
	ManageMembers:  "manage_members",
	ViewAnalytics:  "view_analytics",
	SendMarketing:  "send_marketing",
	ManageShipping: "manage_shipping",
	Owner:          "owner",
}

var byName = func() map[string]Set {
	m := make(map[string]Set, len(names))
	for flag, name := range names {
		m[name] = flag
	}
	return m
}()

var presets = map[string]Set{
	"owner":   RoleOwner,
	"manager": RoleManager,
	"staff":   RoleStaff,
	"viewer":  RoleViewer,
}

// effective expands Owner to every flag.
func (s Set) effective() Set {
	if s&Owner != 0 {
		return s | All
	}
	return s
}

// Has reports whether every bit of p is granted.
func (s Set) Has(p Set) bool {
	return s.effective()&p == p
}

// HasAny reports whether at least one bit of p is granted.
func (s Set) HasAny(p Set) bool {
	return s.effective()&p != 0
}

func (s Set) Add(p Set) Set    { return s | p }
func (s Set) Remove(p Set) Set { return s &^ p }

// IsOwner reports whether the Owner bit is set.
func (s Set) IsOwner() bool { return s&Owner != 0 }

// Count returns the number of set bits.
func (s Set) Count() int { return bits.OnesCount64(uint64(s)) }

// Names returns the sorted names of the explicitly set flags. Unknown bits
// are ignored.
func (s Set) Names() []string {
	out := make([]string, 0, s.Count())
	for flag, name := range names {
		if s&flag != 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// Parse builds a set from flag or role preset names.
func Parse(list []string) (Set, error) {
	var s Set
	for _, raw := range list {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if flag, ok := byName[name]; ok {
			s |= flag
			continue
		}
		if preset, ok := presets[name]; ok {
			s |= preset
			continue
		}
		return 0, fmt.Errorf("unknown permission %q", raw)
	}
	return s, nil
}

// MustParse is Parse for static lists.
func MustParse(list ...string) Set {
	s, err := Parse(list)
	if err != nil {
		panic(err)
	}
	return s
}

// FromInt64 converts a stored BIGINT, rejecting negative values.
func FromInt64(v int64) (Set, error) {
	if v < 0 {
		return 0, fmt.Errorf("invalid permission bits %d", v)
	}
	return Set(v), nil
}

// Int64 returns the value persisted in the database.
func (s Set) Int64() int64 { return int64(s) }

func (s Set) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}

func (s *Set) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return fmt.Errorf("permissions: %w", err)
	}
	*s = Set(v)
	return nil
}
