package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sbd-checker/internal/config"
	"sbd-checker/internal/ledger"
	"sbd-checker/internal/sources"
	"sbd-checker/internal/staging"
)

// Result counts what one pass over a source did.
type Result struct {
	Source  string
	RunID   string
	Scanned int // items produced by the source
	Staged  int // new items written to the store
	Known   int // items already in the store
	Skipped int // items whose names cannot be staged
	Newest  *sources.Item

	// Latest is the time of the newest stageable item the pass saw.
	Latest time.Time
	// Complete is set when the pass ended without error and was not cut
	// short by MaxPerCycle, so every item from Latest down to where it
	// stopped is staged.
	Complete bool
}

type Manager struct {
	store   *staging.Store
	ledger  *ledger.Ledger
	state   *State
	config  config.SyncConfig
	sources []sources.Source
}

func NewManager(store *staging.Store, cfg config.SyncConfig) *Manager {
	return &Manager{
		store:   store,
		config:  cfg,
		sources: []sources.Source{},
	}
}

// SetLedger makes the manager record every staged file in l.
func (m *Manager) SetLedger(l *ledger.Ledger) {
	m.ledger = l
}

// SetState makes the manager keep a per-source summary in s.
func (m *Manager) SetState(s *State) {
	m.state = s
}

func (m *Manager) RegisterSource(src sources.Source) {
	m.sources = append(m.sources, src)
	log.Info().Str("source", src.Name()).Msg("Registered source")
}

// Run makes one pass over every registered source. A failing source is
// logged and does not stop the others; the failures are returned joined.
func (m *Manager) Run(ctx context.Context) ([]Result, error) {
	if m.state != nil {
		if err := m.state.Load(); err != nil {
			log.Warn().Err(err).Msg("Failed to load state, starting fresh")
		}
	}

	var (
		results []Result
		errs    []error
	)
	for _, src := range m.sources {
		res, err := m.SyncSource(ctx, src)
		results = append(results, res)
		if err != nil {
			log.Error().Err(err).Str("source", src.Name()).Msg("Sync failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	if m.state != nil {
		if err := m.state.Save(); err != nil {
			log.Warn().Err(err).Msg("Failed to save state")
		}
	}

	return results, errors.Join(errs...)
}

// SyncSource stages every new item src produces. Items are consumed newest
// first. When StopAtKnown is set and a state is attached, the pass ends at
// the first already staged item that is no newer than the watermark of the
// last complete pass; everything below it was staged then.
func (m *Manager) SyncSource(ctx context.Context, src sources.Source) (Result, error) {
	res := Result{Source: src.Name(), RunID: uuid.NewString()}

	var watermark time.Time
	if m.config.StopAtKnown && m.state != nil {
		watermark = m.state.Watermark(res.Source)
	}
	stagedNow := make(map[string]bool)
	capped := false

	for item, err := range src.Iterate(ctx) {
		if err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		if !staging.Valid(item.Name) {
			res.Skipped++
			log.Debug().Str("source", res.Source).Str("name", item.Name).Msg("Skipping non-sbd item")
			continue
		}
		if item.Time.After(res.Latest) {
			res.Latest = item.Time
		}

		// a repeated name within one pass says nothing about older items
		if stagedNow[item.Name] {
			res.Known++
			continue
		}

		has, err := m.store.Has(item.Name)
		if err != nil {
			return res, err
		}
		if has {
			res.Known++
			if !watermark.IsZero() && !item.Time.After(watermark) {
				log.Debug().Str("source", res.Source).Str("name", item.Name).Msg("Reached staged item, stopping")
				break
			}
			continue
		}

		if err := m.stage(src.Name(), res.RunID, item); err != nil {
			return res, err
		}
		stagedNow[item.Name] = true
		res.Staged++
		if res.Newest == nil {
			newest := item
			res.Newest = &newest
		}

		if m.config.MaxPerCycle > 0 && res.Staged >= m.config.MaxPerCycle {
			capped = true
			break
		}
	}
	res.Complete = !capped

	log.Info().
		Str("source", res.Source).
		Str("run", res.RunID).
		Int("scanned", res.Scanned).
		Int("staged", res.Staged).
		Int("known", res.Known).
		Int("skipped", res.Skipped).
		Bool("complete", res.Complete).
		Msg("Source synced")

	if m.state != nil {
		m.state.Update(res, time.Now())
	}
	return res, nil
}

func (m *Manager) stage(source, runID string, item sources.Item) error {
	defer item.Content.Close()

	data, err := sources.ReadAll(item.Content)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", item.Name, err)
	}
	if err := m.store.Put(item.Name, data); err != nil {
		return err
	}

	if m.ledger != nil {
		device, _ := staging.DeviceID(item.Name)
		err := m.ledger.Record(ledger.Entry{
			Name:     item.Name,
			Device:   device,
			Source:   source,
			ItemTime: item.Time,
			Size:     len(data),
			RunID:    runID,
		})
		if err != nil {
			// unstage so the next run stages and records it again
			if rmErr := m.store.Remove(item.Name); rmErr != nil {
				log.Error().Err(rmErr).Str("name", item.Name).Msg("Failed to unstage unrecorded file")
			}
			return err
		}
	}
	return nil
}
