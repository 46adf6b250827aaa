package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/storage"
)

const (
	DefaultKey = "famledger-storage"

	nuclearResetSuffix = ":nuclear-reset-v1"
)

// ErrFutureVersion is returned when a blob was written by a newer build.
var ErrFutureVersion = errors.New("snapshot version is newer than supported")

type Options struct {
	Key                  string
	MaxTransactionAmount float64
	DefaultCategories    []core.Category
	Logger               *log.Logger
}

// Persister loads and saves the snapshot under a single key.
type Persister struct {
	kv         storage.KV
	key        string
	maxAmount  float64
	categories []core.Category
	logger     *log.Logger
}

func New(kv storage.KV, opts Options) *Persister {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxTransactionAmount <= 0 {
		opts.MaxTransactionAmount = core.DefaultMaxTransactionAmount
	}
	if opts.DefaultCategories == nil {
		opts.DefaultCategories = core.DefaultCategories()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Persister{
		kv:         kv,
		key:        opts.Key,
		maxAmount:  opts.MaxTransactionAmount,
		categories: opts.DefaultCategories,
		logger:     opts.Logger.WithComponent(log.ComponentPersist),
	}
}

// DefaultCategories returns a copy of the seeded category set.
func (p *Persister) DefaultCategories() []core.Category {
	return slices.Clone(p.categories)
}

// MaxTransactionAmount is the cap applied by Partialize on save.
func (p *Persister) MaxTransactionAmount() float64 {
	return p.maxAmount
}

// Defaults returns a fresh snapshot for userID.
func (p *Persister) Defaults(userID string) Snapshot {
	s := NewSnapshot(p.categories)
	s.UserID = userID
	return s
}

// Load returns the stored snapshot, migrated to CurrentVersion. A missing or
// undecodable blob yields defaults. The error is non-nil only when the
// medium itself failed, in which case defaults are returned as well.
func (p *Persister) Load(ctx context.Context) (Snapshot, error) {
	raw, err := p.kv.Load(ctx, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return p.Defaults(""), nil
	}
	if err != nil {
		return p.Defaults(""), fmt.Errorf("load snapshot: %w", err)
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		p.logger.WarnContext(ctx, "Discarding undecodable snapshot", log.FieldError, err)
		return p.Defaults(""), nil
	}

	version, err := versionOf(b)
	if err != nil {
		p.logger.WarnContext(ctx, "Discarding snapshot with bad version", log.FieldError, err)
		return p.Defaults(userIDOf(b)), nil
	}

	switch {
	case version == CurrentVersion:
		s := p.Defaults("")
		if err := json.Unmarshal(raw, &s); err != nil {
			p.logger.WarnContext(ctx, "Discarding undecodable snapshot", log.FieldError, err)
			return p.Defaults(userIDOf(b)), nil
		}
		return p.fill(s), nil

	case version > CurrentVersion:
		p.logger.WarnContext(ctx, "Snapshot written by a newer version, resetting",
			log.FieldVersion, int(version))
		return p.Defaults(userIDOf(b)), nil

	default:
		migrated, err := Migrate(b, version)
		if err != nil {
			p.logger.WarnContext(ctx, "Snapshot migration failed, resetting", log.FieldError, err)
			return p.Defaults(userIDOf(b)), nil
		}
		p.logger.InfoContext(ctx, "Snapshot migrated",
			log.FieldOperation, log.OpMigrate,
			log.FieldVersion, int(version))
		return p.Defaults(userIDOf(migrated)), nil
	}
}

// fill replaces missing collections with their defaults.
func (p *Persister) fill(s Snapshot) Snapshot {
	s.Version = CurrentVersion
	if s.Categories == nil {
		s.Categories = p.DefaultCategories()
	}
	s.Transactions = nonNil(s.Transactions)
	s.Tasks = nonNil(s.Tasks)
	s.Notifications = nonNil(s.Notifications)
	return s
}

// Save partializes s and writes the whole blob.
func (p *Persister) Save(ctx context.Context, s Snapshot) error {
	clean := Partialize(s, p.maxAmount)
	if dropped := len(s.Transactions) - len(clean.Transactions); dropped > 0 {
		p.logger.WarnContext(ctx, "Quarantined unsafe transactions", log.FieldCount, dropped)
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.kv.Save(ctx, p.key, b); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// NuclearReset wipes the snapshot once per install. The sentinel lives under
// its own key so it survives the wipe. It reports whether the wipe ran.
func (p *Persister) NuclearReset(ctx context.Context) (bool, error) {
	sentinel := p.key + nuclearResetSuffix
	_, err := p.kv.Load(ctx, sentinel)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("check reset sentinel: %w", err)
	}

	if err := p.kv.Delete(ctx, p.key); err != nil {
		return false, fmt.Errorf("wipe snapshot: %w", err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := p.kv.Save(ctx, sentinel, stamp); err != nil {
		return true, fmt.Errorf("write reset sentinel: %w", err)
	}
	p.logger.WarnContext(ctx, "Local snapshot wiped", log.FieldKey, p.key)
	return true, nil
}
