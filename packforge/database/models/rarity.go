package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Synthetic tiers sit outside the numeric supply counting but still
// participate in rank ordering: legacy outranks full-art, and both
// outrank every numeric tier.
const (
	RarityLegacy  = "legacy"
	RarityFullArt = "fullart"

	legacySortRank  = -2
	fullArtSortRank = -1
)

type Rarity struct {
	bun.BaseModel `bun:"table:rarities,alias:r"`

	RarityID     string    `bun:"rarity_id,pk"`
	Name         string    `bun:"name,notnull"`
	DefaultCount int       `bun:"default_count,notnull"`
	Rank         int       `bun:"rank,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (r *Rarity) IsSynthetic() bool {
	return r.RarityID == RarityLegacy || r.RarityID == RarityFullArt
}

// SortRank returns the rank used for "rarest first" ordering. Lower is rarer.
func (r *Rarity) SortRank() int {
	switch r.RarityID {
	case RarityLegacy:
		return legacySortRank
	case RarityFullArt:
		return fullArtSortRank
	default:
		return r.Rank
	}
}

// RaritySet is the full set of configured rarities, loaded once at startup.
// Rarities are immutable after creation so the set is safe to share.
type RaritySet struct {
	byID       map[string]*Rarity
	bottomTier *Rarity
}

func NewRaritySet(rarities []*Rarity) *RaritySet {
	set := &RaritySet{byID: make(map[string]*Rarity, len(rarities))}
	for _, r := range rarities {
		set.byID[r.RarityID] = r
		if r.IsSynthetic() {
			continue
		}
		if set.bottomTier == nil || r.SortRank() > set.bottomTier.SortRank() {
			set.bottomTier = r
		}
	}
	return set
}

func (s *RaritySet) Get(rarityID string) (*Rarity, bool) {
	r, ok := s.byID[rarityID]
	return r, ok
}

// BottomTier is the most common numeric rarity, the "shit pack" tier.
func (s *RaritySet) BottomTier() *Rarity {
	return s.bottomTier
}

// IsBottomTier matches by id prefix so tier variants count toward the
// shit-pack estimate as well.
func (s *RaritySet) IsBottomTier(rarityID string) bool {
	if s.bottomTier == nil {
		return false
	}
	return strings.HasPrefix(rarityID, s.bottomTier.RarityID)
}

// Outranks reports whether rarity a is strictly rarer than rarity b.
// Unknown rarities never outrank known ones.
func (s *RaritySet) Outranks(aID, bID string) bool {
	a, okA := s.byID[aID]
	b, okB := s.byID[bID]
	if !okA {
		return false
	}
	if !okB {
		return true
	}
	return a.SortRank() < b.SortRank()
}
