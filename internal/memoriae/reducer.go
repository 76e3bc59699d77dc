package memoriae

import (
	"fmt"
	"sort"
	"time"
)

// TagRef is a tag as recorded on a seed: the id plus the name it carried when
// it was attached.
type TagRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryRef is the single category a seed may carry.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// SeedState is the projection of a seed ledger at a point in time.
// Tags preserve first-insertion order and are unique by id.
type SeedState struct {
	SeedID       string       `json:"seed_id"`
	Content      string       `json:"content"`
	Tags         []TagRef     `json:"tags"`
	Category     *CategoryRef `json:"category,omitempty"`
	LastModified time.Time    `json:"last_modified"`
}

// HasTag reports whether the seed currently carries the tag with the given id.
func (s *SeedState) HasTag(tagID string) bool {
	for _, t := range s.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// TagState is the projection of a tag ledger.
type TagState struct {
	TagID        string    `json:"tag_id"`
	Name         string    `json:"name"`
	Color        *string   `json:"color,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// SproutState is the projection of a sprout ledger. Dismissed is sticky: no
// transaction type reverses it.
type SproutState struct {
	SproutID     string     `json:"sprout_id"`
	SeedID       string     `json:"seed_id"`
	Kind         SproutKind `json:"kind"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Dismissed    bool       `json:"dismissed"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	LastModified time.Time  `json:"last_modified"`
}

// replayOrder returns the transactions to fold: those at or before cutoff
// (all of them when cutoff is zero), sorted ascending by created_at. Equal
// timestamps are broken by transaction id so that replay is deterministic
// regardless of input order.
func replayOrder(txs []Transaction, cutoff time.Time) []Transaction {
	ordered := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !cutoff.IsZero() && tx.CreatedAt.After(cutoff) {
			continue
		}
		ordered = append(ordered, tx)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

// hasCreation reports whether any transaction in the slice is a creation.
func hasCreation(txs []Transaction) bool {
	for _, tx := range txs {
		if tx.Type.IsCreation() {
			return true
		}
	}
	return false
}

// ReduceSeed folds a seed's complete ledger into its current state.
func ReduceSeed(txs []Transaction) (*SeedState, error) {
	return ReduceSeedAt(txs, time.Time{})
}

// ReduceSeedAt folds a seed's ledger into its state as of cutoff (inclusive).
// A zero cutoff means "now". The input slice may be in any order; it is
// sorted before folding, so the result is deterministic.
func ReduceSeedAt(txs []Transaction, cutoff time.Time) (*SeedState, error) {
	ordered := replayOrder(txs, cutoff)
	if !hasCreation(ordered) {
		return nil, fmt.Errorf("reducing seed: %w", ErrMissingCreationTransaction)
	}

	state := &SeedState{Tags: []TagRef{}}
	for _, tx := range ordered {
		if applySeed(state, tx) {
			state.LastModified = tx.CreatedAt
		}
	}
	return state, nil
}

// applySeed mutates state with one transaction and reports whether the state
// actually changed. Unknown transaction types are skipped so that old
// binaries keep working against ledgers written by newer ones.
func applySeed(state *SeedState, tx Transaction) bool {
	switch tx.Type {
	case TypeCreateSeed:
		var d CreateSeedData
		decodeData(tx, &d)
		state.SeedID = tx.SubjectID
		state.Content = d.Content
		return true

	case TypeEditContent:
		var d EditContentData
		decodeData(tx, &d)
		state.Content = d.Content
		return true

	case TypeAddTag:
		var d AddTagData
		if !decodeData(tx, &d) || d.TagID == "" {
			return false
		}
		if state.HasTag(d.TagID) {
			// Set semantics: the first insertion wins, later adds are no-ops.
			return false
		}
		state.Tags = append(state.Tags, TagRef{ID: d.TagID, Name: d.TagName})
		return true

	case TypeRemoveTag:
		var d RemoveTagData
		if !decodeData(tx, &d) || d.TagID == "" {
			return false
		}
		for i, t := range state.Tags {
			if t.ID == d.TagID {
				state.Tags = append(state.Tags[:i], state.Tags[i+1:]...)
				return true
			}
		}
		// Removing an absent tag is a no-op, not an error.
		return false

	case TypeSetCategory:
		var d SetCategoryData
		decodeData(tx, &d)
		// Seeds carry at most one category; a new one fully replaces the old.
		state.Category = &CategoryRef{ID: d.CategoryID, Name: d.CategoryName, Path: d.CategoryPath}
		return true

	case TypeRemoveCategory:
		var d RemoveCategoryData
		if !decodeData(tx, &d) {
			return false
		}
		if state.Category == nil || state.Category.ID != d.CategoryID {
			return false
		}
		state.Category = nil
		return true

	case TypeAddSprout:
		// Side-channel marker: shown on the timeline, never folded into state.
		return false
	}
	return false
}

// ReduceTag folds a tag's complete ledger into its current state.
func ReduceTag(txs []Transaction) (*TagState, error) {
	return ReduceTagAt(txs, time.Time{})
}

// ReduceTagAt folds a tag's ledger into its state as of cutoff (inclusive).
func ReduceTagAt(txs []Transaction, cutoff time.Time) (*TagState, error) {
	ordered := replayOrder(txs, cutoff)
	if !hasCreation(ordered) {
		return nil, fmt.Errorf("reducing tag: %w", ErrMissingCreationTransaction)
	}

	state := &TagState{}
	for _, tx := range ordered {
		if applyTag(state, tx) {
			state.LastModified = tx.CreatedAt
		}
	}
	return state, nil
}

func applyTag(state *TagState, tx Transaction) bool {
	switch tx.Type {
	case TypeCreateTag:
		var d CreateTagData
		decodeData(tx, &d)
		state.TagID = tx.SubjectID
		state.Name = d.Name
		state.Color = d.Color
		return true

	case TypeEditTag:
		var d EditTagData
		if !decodeData(tx, &d) || d.Name == "" {
			return false
		}
		state.Name = d.Name
		return true

	case TypeSetTagColor:
		var d SetTagColorData
		if !decodeData(tx, &d) {
			return false
		}
		state.Color = d.Color
		return true
	}
	return false
}

// ReduceSprout folds a sprout's complete ledger into its current state.
func ReduceSprout(txs []Transaction) (*SproutState, error) {
	return ReduceSproutAt(txs, time.Time{})
}

// ReduceSproutAt folds a sprout's ledger into its state as of cutoff (inclusive).
func ReduceSproutAt(txs []Transaction, cutoff time.Time) (*SproutState, error) {
	ordered := replayOrder(txs, cutoff)
	if !hasCreation(ordered) {
		return nil, fmt.Errorf("reducing sprout: %w", ErrMissingCreationTransaction)
	}

	state := &SproutState{}
	for _, tx := range ordered {
		if applySprout(state, tx) {
			state.LastModified = tx.CreatedAt
		}
	}
	return state, nil
}

func applySprout(state *SproutState, tx Transaction) bool {
	switch tx.Type {
	case TypeCreateSprout:
		var d CreateSproutData
		decodeData(tx, &d)
		state.SproutID = tx.SubjectID
		state.SeedID = d.SeedID
		state.Kind = d.Kind
		state.Title = d.Title
		state.Content = d.Content
		return true

	case TypeEditSprout:
		var d EditSproutData
		if !decodeData(tx, &d) {
			return false
		}
		changed := false
		if d.Title != nil {
			state.Title = *d.Title
			changed = true
		}
		if d.Content != nil {
			state.Content = *d.Content
			changed = true
		}
		return changed

	case TypeDismissSprout:
		if state.Dismissed {
			return false
		}
		state.Dismissed = true
		return true

	case TypeSnoozeSprout:
		var d SnoozeSproutData
		if !decodeData(tx, &d) || d.Until.IsZero() {
			return false
		}
		until := d.Until
		state.SnoozedUntil = &until
		return true
	}
	return false
}
