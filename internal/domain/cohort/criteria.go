package cohort

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Range is an inclusive age interval.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

func (r Range) Contains(v float64) bool { return v >= r.Lo && v <= r.Hi }

// Selection is a set of acceptable categorical values. The zero value places
// no restriction. A selection built with Only is restrictive even when it
// lists nothing: Only() deselects every option and so matches no row.
type Selection struct {
	values     map[string]struct{}
	restricted bool
}

// Any is the unrestricted selection.
func Any() Selection { return Selection{} }

// Only restricts to the given values.
func Only(values ...string) Selection {
	s := Selection{values: make(map[string]struct{}, len(values)), restricted: true}
	for _, v := range values {
		s.values[v] = struct{}{}
	}
	return s
}

func (s Selection) Restricted() bool { return s.restricted }

// Allows reports whether v passes the selection.
func (s Selection) Allows(v string) bool {
	if !s.restricted {
		return true
	}
	_, ok := s.values[v]
	return ok
}

// Values returns the selected values in ascending order, or nil when the
// selection is unrestricted.
func (s Selection) Values() []string {
	if !s.restricted {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Selection) key() string {
	if !s.restricted {
		return "*"
	}
	vals := s.Values()
	for i, v := range vals {
		vals[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(vals, ",") + "]"
}

// Criteria are the cohort filter parameters.
type Criteria struct {
	Age     *Range
	Genders Selection
	Wards   Selection
}

// Validate rejects an inverted age range.
func (c Criteria) Validate() error {
	if c.Age != nil && c.Age.Lo > c.Age.Hi {
		return fmt.Errorf("age range %v-%v is inverted", c.Age.Lo, c.Age.Hi)
	}
	return nil
}

// Key is a canonical rendering of the criteria: equal criteria produce equal
// keys regardless of the order values were selected in.
func (c Criteria) Key() string {
	age := "*"
	if c.Age != nil {
		age = strconv.FormatFloat(c.Age.Lo, 'f', -1, 64) + ":" + strconv.FormatFloat(c.Age.Hi, 'f', -1, 64)
	}
	return "age=" + age + ";gender=" + c.Genders.key() + ";ward=" + c.Wards.key()
}

func (c Criteria) String() string { return c.Key() }
