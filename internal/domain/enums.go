package domain

import "fmt"

// Kind is the directory's category for a server.
type Kind uint8

const (
	KindOfficial Kind = iota
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindOfficial:
		return "official"
	case KindPrivate:
		return "private"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "official":
		return KindOfficial, nil
	case "private":
		return KindPrivate, nil
	}
	return 0, fmt.Errorf("unknown server kind %q", s)
}

// Ownership describes who runs the server process.
type Ownership uint8

const (
	OwnershipPublisher Ownership = iota
	OwnershipProvider
	OwnershipSelfHosted
)

func (o Ownership) String() string {
	switch o {
	case OwnershipPublisher:
		return "publisher"
	case OwnershipProvider:
		return "provider"
	case OwnershipSelfHosted:
		return "self-hosted"
	}
	return fmt.Sprintf("ownership(%d)", uint8(o))
}

func ParseOwnership(s string) (Ownership, error) {
	switch s {
	case "publisher":
		return OwnershipPublisher, nil
	case "provider":
		return OwnershipProvider, nil
	case "self-hosted":
		return OwnershipSelfHosted, nil
	}
	return 0, fmt.Errorf("unknown ownership %q", s)
}

// Mode is the single sortable value derived from Kind and Ownership.
// The numeric order is the sort order.
type Mode uint8

const (
	ModeOfficial Mode = iota
	ModeHosted
	ModeCommunity
)

func (m Mode) String() string {
	switch m {
	case ModeOfficial:
		return "official"
	case ModeHosted:
		return "hosted"
	case ModeCommunity:
		return "community"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "official":
		return ModeOfficial, nil
	case "hosted":
		return ModeHosted, nil
	case "community":
		return ModeCommunity, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Region is the geography the directory assigns to a server.
// The numeric order is the sort order.
type Region uint8

const (
	RegionEurope Region = iota
	RegionNAEast
	RegionNAWest
	RegionSouthAmerica
	RegionAsia
	RegionOceania
	RegionAfrica
)

func (r Region) String() string {
	switch r {
	case RegionEurope:
		return "eu"
	case RegionNAEast:
		return "na-east"
	case RegionNAWest:
		return "na-west"
	case RegionSouthAmerica:
		return "sa"
	case RegionAsia:
		return "asia"
	case RegionOceania:
		return "oceania"
	case RegionAfrica:
		return "africa"
	}
	return fmt.Sprintf("region(%d)", uint8(r))
}

func ParseRegion(s string) (Region, error) {
	switch s {
	case "eu":
		return RegionEurope, nil
	case "na-east":
		return RegionNAEast, nil
	case "na-west":
		return RegionNAWest, nil
	case "sa":
		return RegionSouthAmerica, nil
	case "asia":
		return RegionAsia, nil
	case "oceania":
		return RegionOceania, nil
	case "africa":
		return RegionAfrica, nil
	}
	return 0, fmt.Errorf("unknown region %q", s)
}

// Validity classifies how trustworthy a record's status fields are.
type Validity uint8

const (
	// ValidityInvalid marks entries that never completed a status
	// exchange, or whose last exchange failed.
	ValidityInvalid Validity = iota
	// ValidityOutdated marks reachable servers running a build other
	// than the local one.
	ValidityOutdated
	ValidityValid
)

func (v Validity) String() string {
	switch v {
	case ValidityInvalid:
		return "invalid"
	case ValidityOutdated:
		return "outdated"
	case ValidityValid:
		return "valid"
	}
	return fmt.Sprintf("validity(%d)", uint8(v))
}

// TypeFilter is the server-category preselection offered by the
// browser's type dropdown.
type TypeFilter uint8

const (
	TypeAll TypeFilter = iota
	TypeOfficial
	TypePrivate
	TypeFavorites
)

func (t TypeFilter) String() string {
	switch t {
	case TypeAll:
		return "all"
	case TypeOfficial:
		return "official"
	case TypePrivate:
		return "private"
	case TypeFavorites:
		return "favorites"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func ParseTypeFilter(s string) (TypeFilter, error) {
	switch s {
	case "", "all":
		return TypeAll, nil
	case "official":
		return TypeOfficial, nil
	case "private":
		return TypePrivate, nil
	case "favorites":
		return TypeFavorites, nil
	}
	return 0, fmt.Errorf("unknown type filter %q", s)
}
