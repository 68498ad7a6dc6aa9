package meta

import "fmt"

// KindType is the closed set of section classifications.
type KindType string

const (
	KindMerit      KindType = "merit"
	KindDiscipline KindType = "discipline"
	KindDevotion   KindType = "devotion"
	KindGift       KindType = "gift"
	KindRite       KindType = "rite"
	KindSpell      KindType = "spell"
	KindCondition  KindType = "condition"
	KindRule       KindType = "rule"
)

// MeritSubkind further classifies merits. The empty value means unspecified.
type MeritSubkind string

const (
	MeritMental       MeritSubkind = "mental"
	MeritPhysical     MeritSubkind = "physical"
	MeritSocial       MeritSubkind = "social"
	MeritFighting     MeritSubkind = "fighting"
	MeritSupernatural MeritSubkind = "supernatural"
)

var validKinds = map[KindType]bool{
	KindMerit:      true,
	KindDiscipline: true,
	KindDevotion:   true,
	KindGift:       true,
	KindRite:       true,
	KindSpell:      true,
	KindCondition:  true,
	KindRule:       true,
}

var validSubkinds = map[MeritSubkind]bool{
	MeritMental:       true,
	MeritPhysical:     true,
	MeritSocial:       true,
	MeritFighting:     true,
	MeritSupernatural: true,
}

// Kind tags the semantic role of a section. Only merits carry a subkind.
type Kind struct {
	Type    KindType
	Subkind MeritSubkind
}

// Merit returns a merit kind; sub may be empty.
func Merit(sub MeritSubkind) Kind {
	return Kind{Type: KindMerit, Subkind: sub}
}

// Plain returns a kind without payload.
func Plain(t KindType) Kind {
	return Kind{Type: t}
}

// Validate reports whether k belongs to the closed set.
func (k Kind) Validate() error {
	if !validKinds[k.Type] {
		return fmt.Errorf("unknown section kind %q", k.Type)
	}
	if k.Subkind == "" {
		return nil
	}
	if k.Type != KindMerit {
		return fmt.Errorf("section kind %q takes no subkind", k.Type)
	}
	if !validSubkinds[k.Subkind] {
		return fmt.Errorf("unknown merit subkind %q", k.Subkind)
	}
	return nil
}

func (k Kind) String() string {
	if k.Subkind != "" {
		return string(k.Type) + "/" + string(k.Subkind)
	}
	return string(k.Type)
}
