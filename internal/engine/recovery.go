package engine

import (
	"fmt"

	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/journal"
)

// recover undoes whatever transaction the journal shows was left
// incomplete by a crash, then truncates the journal. It runs once, at
// Open, before any caller can begin a new transaction.
//
// Because blabber allows only one transaction in flight at a time, a
// well-formed journal holds at most one Begin record with no matching
// Commit or Abort. recover tolerates more than one defensively, in case a
// future caller relaxes that constraint.
func (e *Engine) recover() error {
	records, err := e.journal.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	open := make(map[uint64]bool)
	preimages := make(map[uint64]map[block.ID][]byte)

	for _, r := range records {
		switch r.Kind {
		case journal.KindBegin:
			open[r.TxID] = true
			preimages[r.TxID] = make(map[block.ID][]byte)
		case journal.KindPreImage:
			m, ok := preimages[r.TxID]
			if !ok {
				continue
			}
			if _, exists := m[r.BlockID]; !exists {
				m[r.BlockID] = r.Data
			}
		case journal.KindCommit, journal.KindAbort:
			delete(open, r.TxID)
			delete(preimages, r.TxID)
		}
	}

	for txID := range open {
		e.opts.Logger.Warn("undoing incomplete transaction found at open", "tx", txID)
		for id, before := range preimages[txID] {
			if err := e.device.Write(id, before); err != nil {
				return fmt.Errorf("recovering tx %d: restore block %d: %w", txID, id, err)
			}
		}
	}

	if len(open) > 0 {
		if err := e.device.Sync(); err != nil {
			return fmt.Errorf("recovery: sync device: %w", err)
		}
	}

	return e.journal.Truncate()
}
