package memoriae

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransactionType identifies the kind of mutation a transaction records.
// Each entity family (seed, tag, sprout) has its own closed set of types.
type TransactionType string

// Seed transaction types.
const (
	TypeCreateSeed     TransactionType = "create_seed"
	TypeEditContent    TransactionType = "edit_content"
	TypeAddTag         TransactionType = "add_tag"
	TypeRemoveTag      TransactionType = "remove_tag"
	TypeSetCategory    TransactionType = "set_category"
	TypeRemoveCategory TransactionType = "remove_category"
	TypeAddSprout      TransactionType = "add_sprout"
)

// Tag transaction types.
const (
	TypeCreateTag   TransactionType = "create_tag"
	TypeEditTag     TransactionType = "edit_tag"
	TypeSetTagColor TransactionType = "set_tag_color"
)

// Sprout transaction types.
const (
	TypeCreateSprout  TransactionType = "create_sprout"
	TypeEditSprout    TransactionType = "edit_sprout"
	TypeDismissSprout TransactionType = "dismiss_sprout"
	TypeSnoozeSprout  TransactionType = "snooze_sprout"
)

// IsCreation reports whether t establishes a new entity.
// Every ledger must contain exactly one creation transaction, and it is
// causally first; reducers fail without it.
func (t TransactionType) IsCreation() bool {
	switch t {
	case TypeCreateSeed, TypeCreateTag, TypeCreateSprout:
		return true
	}
	return false
}

// Transaction is one immutable entry in an entity's ledger. The ledger is the
// sole source of truth; reduced states are disposable projections.
type Transaction struct {
	ID           string          `json:"id"`
	SubjectID    string          `json:"subject_id"`
	Type         TransactionType `json:"transaction_type"`
	Data         json.RawMessage `json:"transaction_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	AutomationID string          `json:"automation_id,omitempty"`
}

// Automated reports whether the transaction was produced by an automated
// process rather than a user action. Display-only; reducers ignore it.
func (tx Transaction) Automated() bool { return tx.AutomationID != "" }

// Payload structs, one per transaction type. Transaction.Data decodes into
// the struct matching Transaction.Type; unrecognized types stay raw and are
// skipped by the reducers.

type CreateSeedData struct {
	Content string `json:"content"`
}

type EditContentData struct {
	Content string `json:"content"`
}

type AddTagData struct {
	TagID   string `json:"tag_id"`
	TagName string `json:"tag_name"`
}

type RemoveTagData struct {
	TagID   string `json:"tag_id"`
	TagName string `json:"tag_name,omitempty"`
}

type SetCategoryData struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	CategoryPath string `json:"category_path"`
}

type RemoveCategoryData struct {
	CategoryID string `json:"category_id"`
}

type AddSproutData struct {
	SproutID string     `json:"sprout_id"`
	Kind     SproutKind `json:"kind,omitempty"`
}

type CreateTagData struct {
	Name  string  `json:"name"`
	Color *string `json:"color,omitempty"`
}

type EditTagData struct {
	Name string `json:"name"`
}

// SetTagColorData clears the color when Color is null.
type SetTagColorData struct {
	Color *string `json:"color"`
}

type CreateSproutData struct {
	SeedID  string     `json:"seed_id"`
	Kind    SproutKind `json:"kind"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

// EditSproutData leaves a field unchanged when it is null.
type EditSproutData struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type DismissSproutData struct{}

type SnoozeSproutData struct {
	Until time.Time `json:"until"`
}

// SproutKind distinguishes the follow-up artifact variants attached to seeds.
type SproutKind string

const (
	SproutFollowup     SproutKind = "followup"
	SproutMusing       SproutKind = "musing"
	SproutWikipedia    SproutKind = "wikipedia_reference"
	SproutExtraContext SproutKind = "extra_context"
	SproutFactCheck    SproutKind = "fact_check"
)

// Valid reports whether k is one of the known sprout kinds.
func (k SproutKind) Valid() bool {
	switch k {
	case SproutFollowup, SproutMusing, SproutWikipedia, SproutExtraContext, SproutFactCheck:
		return true
	}
	return false
}

// Sprout is the registry record for a sprout entity: which seed it belongs
// to, its kind, and when it was created. Its mutable fields live in its own
// transaction ledger.
type Sprout struct {
	ID        string     `json:"id"`
	SeedID    string     `json:"seed_id"`
	Kind      SproutKind `json:"kind"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
}

// MarshalData encodes a payload struct for storage in Transaction.Data.
func MarshalData(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction data: %w", err)
	}
	return data, nil
}

// decodeData unmarshals tx.Data into v. A missing or malformed payload
// leaves v at its zero value and reports false; reducers and the timeline
// degrade gracefully rather than fail on bad payloads.
func decodeData(tx Transaction, v any) bool {
	if len(tx.Data) == 0 {
		return false
	}
	return json.Unmarshal(tx.Data, v) == nil
}
