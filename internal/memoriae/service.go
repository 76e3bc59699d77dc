package memoriae

import (
	"context"
	"fmt"
	"time"
)

// Service is the orchestration layer that coordinates the ledger store, the
// reducers, and the archive vault to perform the operations exposed by the
// CLI and the HTTP API. Every mutation appends a transaction and re-reduces
// the ledger to validate and return the next projected state.
type Service struct {
	store       Store
	vault       ArchiveVault
	encryptor   Encryptor
	logger      Logger
	clock       Clock
	idgen       IDGenerator
	groupWindow time.Duration
}

// NewService creates a Service with the provided dependencies. vault and
// encryptor may be nil when archive export is not configured.
func NewService(store Store, vault ArchiveVault, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		store:       store,
		vault:       vault,
		encryptor:   encryptor,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		groupWindow: DefaultGroupWindow,
	}
}

// SetGroupWindow overrides the timeline grouping window.
func (s *Service) SetGroupWindow(d time.Duration) {
	if d > 0 {
		s.groupWindow = d
	}
}

// newTransaction assembles a ledger entry with a fresh id and timestamp.
func (s *Service) newTransaction(subjectID string, typ TransactionType, data any, automationID string) (Transaction, error) {
	raw, err := MarshalData(data)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:           s.idgen.New(),
		SubjectID:    subjectID,
		Type:         typ,
		Data:         raw,
		CreatedAt:    s.clock.Now(),
		AutomationID: automationID,
	}, nil
}

// Seed operations

// CaptureSeed records a new seed with the given content and returns its
// initial state.
func (s *Service) CaptureSeed(ctx context.Context, content string, automationID string) (*SeedState, error) {
	seedID := s.idgen.New()
	tx, err := s.newTransaction(seedID, TypeCreateSeed, CreateSeedData{Content: content}, automationID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateSeed(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating seed: %w", err)
	}

	s.logger.Info("seed captured", "seed_id", seedID)
	return s.SeedState(ctx, seedID)
}

// SeedState reduces a seed's ledger into its current state.
func (s *Service) SeedState(ctx context.Context, seedID string) (*SeedState, error) {
	txs, err := s.store.SeedTransactions(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading seed ledger: %w", err)
	}
	return ReduceSeed(txs)
}

// SeedStateAt reduces a seed's ledger into its state as of the given time.
func (s *Service) SeedStateAt(ctx context.Context, seedID string, at time.Time) (*SeedState, error) {
	txs, err := s.store.SeedTransactions(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading seed ledger: %w", err)
	}
	return ReduceSeedAt(txs, at)
}

// ListSeeds returns the current state of every seed, oldest first.
func (s *Service) ListSeeds(ctx context.Context) ([]*SeedState, error) {
	ids, err := s.store.ListSeedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing seeds: %w", err)
	}

	states := make([]*SeedState, 0, len(ids))
	for _, id := range ids {
		state, err := s.SeedState(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reducing seed %s: %w", id, err)
		}
		states = append(states, state)
	}
	return states, nil
}

// EditSeedContent replaces a seed's content.
func (s *Service) EditSeedContent(ctx context.Context, seedID, content, automationID string) (*SeedState, error) {
	return s.appendSeed(ctx, seedID, TypeEditContent, EditContentData{Content: content}, automationID)
}

// AddSeedTag attaches a tag to a seed. The tag must exist; its current name
// is copied into the payload so historical views can render it even after
// later renames.
func (s *Service) AddSeedTag(ctx context.Context, seedID, tagID, automationID string) (*SeedState, error) {
	tag, err := s.TagState(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return s.appendSeed(ctx, seedID, TypeAddTag, AddTagData{TagID: tagID, TagName: tag.Name}, automationID)
}

// RemoveSeedTag detaches a tag from a seed. Removing a tag the seed does not
// carry appends a no-op transaction rather than failing.
func (s *Service) RemoveSeedTag(ctx context.Context, seedID, tagID, automationID string) (*SeedState, error) {
	data := RemoveTagData{TagID: tagID}

	// Record the name as it appears on the seed so the timeline can show it.
	state, err := s.SeedState(ctx, seedID)
	if err != nil {
		return nil, err
	}
	for _, t := range state.Tags {
		if t.ID == tagID {
			data.TagName = t.Name
			break
		}
	}

	return s.appendSeed(ctx, seedID, TypeRemoveTag, data, automationID)
}

// SetSeedCategory replaces the seed's single category.
func (s *Service) SetSeedCategory(ctx context.Context, seedID string, category CategoryRef, automationID string) (*SeedState, error) {
	data := SetCategoryData{
		CategoryID:   category.ID,
		CategoryName: category.Name,
		CategoryPath: category.Path,
	}
	return s.appendSeed(ctx, seedID, TypeSetCategory, data, automationID)
}

// RemoveSeedCategory clears the seed's category when the id matches.
func (s *Service) RemoveSeedCategory(ctx context.Context, seedID, categoryID, automationID string) (*SeedState, error) {
	return s.appendSeed(ctx, seedID, TypeRemoveCategory, RemoveCategoryData{CategoryID: categoryID}, automationID)
}

// appendSeed validates the seed exists, appends one transaction, and returns
// the re-reduced state.
func (s *Service) appendSeed(ctx context.Context, seedID string, typ TransactionType, data any, automationID string) (*SeedState, error) {
	txs, err := s.store.SeedTransactions(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading seed ledger: %w", err)
	}
	if _, err := ReduceSeed(txs); err != nil {
		return nil, err
	}

	tx, err := s.newTransaction(seedID, typ, data, automationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendSeedTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("appending %s: %w", typ, err)
	}

	s.logger.Debug("seed transaction appended", "seed_id", seedID, "type", string(typ))
	return ReduceSeed(append(txs, tx))
}

// SeedTimeline builds the display history for a seed: its transactions merged
// with its sprouts, grouped for display.
func (s *Service) SeedTimeline(ctx context.Context, seedID string) ([]DisplayGroup, error) {
	txs, err := s.store.SeedTransactions(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading seed ledger: %w", err)
	}
	sprouts, err := s.store.SproutsForSeed(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading sprouts: %w", err)
	}
	return BuildTimelineWindow(txs, sprouts, s.groupWindow), nil
}

// Tag operations

// CreateTag records a new tag and returns its initial state.
func (s *Service) CreateTag(ctx context.Context, name string, color *string) (*TagState, error) {
	tagID := s.idgen.New()
	tx, err := s.newTransaction(tagID, TypeCreateTag, CreateTagData{Name: name, Color: color}, "")
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateTag(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}

	s.logger.Info("tag created", "tag_id", tagID, "name", name)
	return s.TagState(ctx, tagID)
}

// TagState reduces a tag's ledger into its current state.
func (s *Service) TagState(ctx context.Context, tagID string) (*TagState, error) {
	txs, err := s.store.TagTransactions(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("loading tag ledger: %w", err)
	}
	return ReduceTag(txs)
}

// ListTags returns the current state of every tag, oldest first.
func (s *Service) ListTags(ctx context.Context) ([]*TagState, error) {
	ids, err := s.store.ListTagIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	states := make([]*TagState, 0, len(ids))
	for _, id := range ids {
		state, err := s.TagState(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reducing tag %s: %w", id, err)
		}
		states = append(states, state)
	}
	return states, nil
}

// RenameTag changes a tag's name.
func (s *Service) RenameTag(ctx context.Context, tagID, name string) (*TagState, error) {
	return s.appendTag(ctx, tagID, TypeEditTag, EditTagData{Name: name})
}

// SetTagColor changes a tag's color; a nil color clears it.
func (s *Service) SetTagColor(ctx context.Context, tagID string, color *string) (*TagState, error) {
	return s.appendTag(ctx, tagID, TypeSetTagColor, SetTagColorData{Color: color})
}

func (s *Service) appendTag(ctx context.Context, tagID string, typ TransactionType, data any) (*TagState, error) {
	txs, err := s.store.TagTransactions(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("loading tag ledger: %w", err)
	}
	if _, err := ReduceTag(txs); err != nil {
		return nil, err
	}

	tx, err := s.newTransaction(tagID, typ, data, "")
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendTagTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("appending %s: %w", typ, err)
	}

	return ReduceTag(append(txs, tx))
}

// Sprout operations

// AttachSprout creates a sprout of the given kind on a seed. The sprout gets
// its own ledger; the seed ledger receives an add_sprout marker so the
// attachment shows up in as-of views even though it never mutates seed state.
func (s *Service) AttachSprout(ctx context.Context, seedID string, kind SproutKind, title, content, automationID string) (*SproutState, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown sprout kind: %s", kind)
	}
	if _, err := s.SeedState(ctx, seedID); err != nil {
		return nil, err
	}

	sproutID := s.idgen.New()
	creation, err := s.newTransaction(sproutID, TypeCreateSprout, CreateSproutData{
		SeedID:  seedID,
		Kind:    kind,
		Title:   title,
		Content: content,
	}, automationID)
	if err != nil {
		return nil, err
	}

	marker, err := s.newTransaction(seedID, TypeAddSprout, AddSproutData{SproutID: sproutID, Kind: kind}, automationID)
	if err != nil {
		return nil, err
	}

	sprout := Sprout{
		ID:        sproutID,
		SeedID:    seedID,
		Kind:      kind,
		Title:     title,
		CreatedAt: creation.CreatedAt,
	}
	if err := s.store.CreateSprout(ctx, sprout, creation, &marker); err != nil {
		return nil, fmt.Errorf("creating sprout: %w", err)
	}

	s.logger.Info("sprout attached", "seed_id", seedID, "sprout_id", sproutID, "kind", string(kind))
	return s.SproutState(ctx, sproutID)
}

// SproutState reduces a sprout's ledger into its current state.
func (s *Service) SproutState(ctx context.Context, sproutID string) (*SproutState, error) {
	txs, err := s.store.SproutTransactions(ctx, sproutID)
	if err != nil {
		return nil, fmt.Errorf("loading sprout ledger: %w", err)
	}
	return ReduceSprout(txs)
}

// SeedSprouts returns the current state of every sprout attached to a seed.
func (s *Service) SeedSprouts(ctx context.Context, seedID string) ([]*SproutState, error) {
	sprouts, err := s.store.SproutsForSeed(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("loading sprouts: %w", err)
	}

	states := make([]*SproutState, 0, len(sprouts))
	for _, sp := range sprouts {
		state, err := s.SproutState(ctx, sp.ID)
		if err != nil {
			return nil, fmt.Errorf("reducing sprout %s: %w", sp.ID, err)
		}
		states = append(states, state)
	}
	return states, nil
}

// EditSprout updates a sprout's title and/or content. Nil fields are left
// unchanged.
func (s *Service) EditSprout(ctx context.Context, sproutID string, title, content *string, automationID string) (*SproutState, error) {
	return s.appendSprout(ctx, sproutID, TypeEditSprout, EditSproutData{Title: title, Content: content}, automationID)
}

// DismissSprout marks a sprout dismissed. Dismissal is permanent.
func (s *Service) DismissSprout(ctx context.Context, sproutID, automationID string) (*SproutState, error) {
	return s.appendSprout(ctx, sproutID, TypeDismissSprout, DismissSproutData{}, automationID)
}

// SnoozeSprout hides a sprout until the given time.
func (s *Service) SnoozeSprout(ctx context.Context, sproutID string, until time.Time, automationID string) (*SproutState, error) {
	if until.IsZero() {
		return nil, fmt.Errorf("snooze time is required")
	}
	return s.appendSprout(ctx, sproutID, TypeSnoozeSprout, SnoozeSproutData{Until: until}, automationID)
}

func (s *Service) appendSprout(ctx context.Context, sproutID string, typ TransactionType, data any, automationID string) (*SproutState, error) {
	txs, err := s.store.SproutTransactions(ctx, sproutID)
	if err != nil {
		return nil, fmt.Errorf("loading sprout ledger: %w", err)
	}
	if _, err := ReduceSprout(txs); err != nil {
		return nil, err
	}

	tx, err := s.newTransaction(sproutID, typ, data, automationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendSproutTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("appending %s: %w", typ, err)
	}

	return ReduceSprout(append(txs, tx))
}
