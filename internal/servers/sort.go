package servers

import (
	"fmt"
	"strings"

	"server-browser/internal/domain"
)

// SortKey selects the primary ordering attribute.
type SortKey uint8

const (
	SortByName SortKey = iota
	SortByMap
	SortByMode
	SortByRegion
)

func (k SortKey) String() string {
	switch k {
	case SortByName:
		return "Name"
	case SortByMap:
		return "Map"
	case SortByMode:
		return "Mode"
	case SortByRegion:
		return "Region"
	default:
		return fmt.Sprintf("SortKey(%d)", uint8(k))
	}
}

// ParseSortKey accepts a key name case-insensitively.
func ParseSortKey(s string) (SortKey, error) {
	for _, k := range []SortKey{SortByName, SortByMap, SortByMode, SortByRegion} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown sort key %q", s)
}

// SortCriteria is a total order over server records: a primary key plus
// a direction. Ties on the primary key always fall back to the record ID
// so repeated sorts never shuffle rows that compare equal.
type SortCriteria struct {
	Key       SortKey
	Ascending bool
}

// Reversed returns the criteria with the direction flipped.
func (c SortCriteria) Reversed() SortCriteria {
	c.Ascending = !c.Ascending
	return c
}

// String serializes the criteria in the configuration form: the key
// name, prefixed with "-" when descending.
func (c SortCriteria) String() string {
	if c.Ascending {
		return c.Key.String()
	}
	return "-" + c.Key.String()
}

// ParseSortCriteria parses the "Key" / "-Key" configuration form.
func ParseSortCriteria(s string) (SortCriteria, error) {
	ascending := true
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		ascending = false
		s = rest
	}
	key, err := ParseSortKey(s)
	if err != nil {
		return SortCriteria{}, err
	}
	return SortCriteria{Key: key, Ascending: ascending}, nil
}

// Less reports whether a orders strictly before b. Descending reverses
// the combined primary-then-tie-break order, so flipping the direction
// yields the exact reverse sequence, tied rows included.
func (c SortCriteria) Less(a, b *domain.Server) bool {
	cmp := c.compare(a, b)
	if c.Ascending {
		return cmp < 0
	}
	return cmp > 0
}

func (c SortCriteria) compare(a, b *domain.Server) int {
	var cmp int
	switch c.Key {
	case SortByName:
		cmp = strings.Compare(a.Name, b.Name)
	case SortByMap:
		cmp = strings.Compare(a.Map, b.Map)
	case SortByMode:
		cmp = int(a.Mode()) - int(b.Mode())
	case SortByRegion:
		cmp = int(a.Region) - int(b.Region)
	}
	if cmp == 0 {
		cmp = strings.Compare(a.ID, b.ID)
	}
	return cmp
}
