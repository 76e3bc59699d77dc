package memoriae

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// archiveRecord is one line of an exported ledger archive. Exactly one of
// Sprout or Transaction is set, discriminated by Kind.
type archiveRecord struct {
	Kind        string       `json:"kind"` // "seed_transaction", "sprout", "sprout_transaction"
	Sprout      *Sprout      `json:"sprout,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

const (
	recordSeedTransaction   = "seed_transaction"
	recordSprout            = "sprout"
	recordSproutTransaction = "sprout_transaction"
)

// ExportSeed serializes a seed's complete history — its own ledger, its
// sprout registry records, and every sprout ledger — as JSON lines, encrypts
// the result when an encryptor is configured, and stores it in the archive
// vault. The archive version is the total transaction count, so a stale
// export can never silently overwrite a newer one.
func (s *Service) ExportSeed(ctx context.Context, seedID string) (int64, error) {
	if s.vault == nil {
		return 0, fmt.Errorf("no archive vault configured")
	}

	txs, err := s.store.SeedTransactions(ctx, seedID)
	if err != nil {
		return 0, fmt.Errorf("loading seed ledger: %w", err)
	}
	sprouts, err := s.store.SproutsForSeed(ctx, seedID)
	if err != nil {
		return 0, fmt.Errorf("loading sprouts: %w", err)
	}

	var plain bytes.Buffer
	enc := json.NewEncoder(&plain)
	count := int64(0)

	for i := range txs {
		if err := enc.Encode(archiveRecord{Kind: recordSeedTransaction, Transaction: &txs[i]}); err != nil {
			return 0, fmt.Errorf("encoding seed transaction: %w", err)
		}
		count++
	}
	for i := range sprouts {
		if err := enc.Encode(archiveRecord{Kind: recordSprout, Sprout: &sprouts[i]}); err != nil {
			return 0, fmt.Errorf("encoding sprout: %w", err)
		}
		stxs, err := s.store.SproutTransactions(ctx, sprouts[i].ID)
		if err != nil {
			return 0, fmt.Errorf("loading sprout ledger: %w", err)
		}
		for j := range stxs {
			if err := enc.Encode(archiveRecord{Kind: recordSproutTransaction, Transaction: &stxs[j]}); err != nil {
				return 0, fmt.Errorf("encoding sprout transaction: %w", err)
			}
			count++
		}
	}

	payload := plain.Bytes()
	if s.encryptor != nil && s.encryptor.IsConfigured() {
		var sealed bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(payload), &sealed); err != nil {
			return 0, fmt.Errorf("encrypting archive: %w", err)
		}
		payload = sealed.Bytes()
	}

	// Refuse to replace a newer archive with an older one.
	existing, err := s.vault.ArchiveVersion(seedID)
	if err != nil {
		return 0, fmt.Errorf("checking archive version: %w", err)
	}
	if existing > count {
		return 0, fmt.Errorf("archive for seed %s is at version %d, local ledger only has %d transactions", seedID, existing, count)
	}

	if err := s.vault.PutArchive(seedID, bytes.NewReader(payload), int64(len(payload)), count); err != nil {
		return 0, fmt.Errorf("storing archive: %w", err)
	}

	s.logger.Info("seed archived", "seed_id", seedID, "version", count)
	return count, nil
}

// RestoreSeed replays an archived seed into the store, preserving the
// original transaction ids and timestamps. dec is required when the archive
// was exported with encryption; pass nil for plaintext archives. The seed
// must not already exist locally.
func (s *Service) RestoreSeed(ctx context.Context, seedID string, dec DecryptionContext) (*SeedState, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no archive vault configured")
	}

	if _, err := s.store.SeedTransactions(ctx, seedID); err == nil {
		return nil, fmt.Errorf("seed %s already exists locally", seedID)
	} else if !errors.Is(err, ErrSeedNotFound) {
		return nil, fmt.Errorf("checking for existing seed: %w", err)
	}

	var sealed bytes.Buffer
	if err := s.vault.GetArchive(seedID, &sealed); err != nil {
		return nil, fmt.Errorf("fetching archive: %w", err)
	}

	var payload io.Reader = &sealed
	if dec != nil {
		var plain bytes.Buffer
		if err := dec.Decrypt(&sealed, &plain); err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		payload = &plain
	}

	seedTxs, sprouts, sproutTxs, err := readArchive(payload)
	if err != nil {
		return nil, err
	}

	// Replay the seed ledger: creation first, then the rest in replay order.
	ordered := replayOrder(seedTxs, time.Time{})
	if len(ordered) == 0 || !ordered[0].Type.IsCreation() {
		return nil, fmt.Errorf("restoring seed %s: %w", seedID, ErrMissingCreationTransaction)
	}
	if err := s.store.CreateSeed(ctx, ordered[0]); err != nil {
		return nil, fmt.Errorf("replaying seed creation: %w", err)
	}
	for _, tx := range ordered[1:] {
		if err := s.store.AppendSeedTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("replaying seed transaction %s: %w", tx.ID, err)
		}
	}

	// Replay each sprout ledger. The add_sprout markers were already restored
	// with the seed ledger, so no new marker is written.
	for _, sp := range sprouts {
		ledger := replayOrder(sproutTxs[sp.ID], time.Time{})
		if len(ledger) == 0 || !ledger[0].Type.IsCreation() {
			return nil, fmt.Errorf("restoring sprout %s: %w", sp.ID, ErrMissingCreationTransaction)
		}
		if err := s.store.CreateSprout(ctx, sp, ledger[0], nil); err != nil {
			return nil, fmt.Errorf("replaying sprout creation: %w", err)
		}
		for _, tx := range ledger[1:] {
			if err := s.store.AppendSproutTransaction(ctx, tx); err != nil {
				return nil, fmt.Errorf("replaying sprout transaction %s: %w", tx.ID, err)
			}
		}
	}

	s.logger.Info("seed restored", "seed_id", seedID, "transactions", len(seedTxs), "sprouts", len(sprouts))
	return s.SeedState(ctx, seedID)
}

// readArchive decodes JSON-lines archive records into their three families.
func readArchive(r io.Reader) ([]Transaction, []Sprout, map[string][]Transaction, error) {
	var (
		seedTxs   []Transaction
		sprouts   []Sprout
		sproutTxs = make(map[string][]Transaction)
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec archiveRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, nil, fmt.Errorf("decoding archive record: %w", err)
		}
		switch rec.Kind {
		case recordSeedTransaction:
			if rec.Transaction != nil {
				seedTxs = append(seedTxs, *rec.Transaction)
			}
		case recordSprout:
			if rec.Sprout != nil {
				sprouts = append(sprouts, *rec.Sprout)
			}
		case recordSproutTransaction:
			if rec.Transaction != nil {
				sproutTxs[rec.Transaction.SubjectID] = append(sproutTxs[rec.Transaction.SubjectID], *rec.Transaction)
			}
		default:
			return nil, nil, nil, fmt.Errorf("unknown archive record kind: %s", rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("reading archive: %w", err)
	}

	return seedTxs, sprouts, sproutTxs, nil
}
