/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ledger implements the durable, resumable identifier ledger.
//
// The on-disk form is a CSV file behind the Store API; the in-memory
// representation is a keyed map. Every Commit performs a full atomic
// rewrite (temp file + rename) so a crash leaves either the old or the
// new complete snapshot, never a partial one.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/carverauto/cachewarm/pkg/logger"
	"github.com/carverauto/cachewarm/pkg/models"
)

// header is the stable CSV column order. Changing it breaks external
// tooling that inspects the ledger, so treat it as a wire format.
var header = []string{"id", "display_name", "status", "attempts", "last_status_code", "last_checked"}

const ledgerFileMode = 0o644

// Store is a CSV-backed ledger of identifier records.
//
// Probing is parallel but commits are not: a single mutex serializes
// every mutation and full rewrite, which is the single-writer discipline
// the resumability guarantee depends on.
type Store struct {
	path    string
	mu      sync.Mutex
	records map[string]*models.Record
	logger  logger.Logger
}

// NewFileStore creates a Store backed by the CSV file at path. Call Load
// before anything else.
func NewFileStore(path string, log logger.Logger) *Store {
	return &Store{
		path:    path,
		records: make(map[string]*models.Record),
		logger:  log,
	}
}

// Load reads the durable store into memory. A missing file yields an
// empty ledger; an unparseable file yields ErrLedgerCorrupt.
func (s *Store) Load() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.records = make(map[string]*models.Record)
			return 0, nil
		}

		return 0, fmt.Errorf("%w: %w", ErrLedgerCorrupt, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Error().Err(cerr).Msg("failed to close ledger file")
		}
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(header)

	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLedgerCorrupt, err)
	}

	records := make(map[string]*models.Record, len(rows))

	for i, row := range rows {
		if i == 0 && row[0] == header[0] {
			continue // header row
		}

		rec, err := parseRow(row)
		if err != nil {
			return 0, fmt.Errorf("%w: row %d: %w", ErrLedgerCorrupt, i+1, err)
		}

		if rec.ID == "" {
			continue
		}

		records[rec.ID] = rec
	}

	s.records = records

	return len(records), nil
}

func parseRow(row []string) (*models.Record, error) {
	attempts := 0

	if row[3] != "" {
		var err error

		attempts, err = strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("attempts field: %w", err)
		}
	}

	var checked time.Time

	if row[5] != "" {
		var err error

		checked, err = time.Parse(time.RFC3339, row[5])
		if err != nil {
			return nil, fmt.Errorf("last_checked field: %w", err)
		}
	}

	return &models.Record{
		ID:             row[0],
		DisplayName:    row[1],
		Status:         models.ParseStatus(row[2]),
		Attempts:       attempts,
		LastStatusCode: row[4],
		LastChecked:    checked,
	}, nil
}

// Merge inserts a fresh record for every discovered identity not already
// present and refreshes display names on the rest. It never removes a
// record, so a partial inventory fetch cannot lose state. Returns the
// number of newly inserted identifiers.
func (s *Store) Merge(discovered []models.Identity) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0

	for _, ident := range discovered {
		if ident.ID == "" {
			continue
		}

		if existing, ok := s.records[ident.ID]; ok {
			if ident.DisplayName != "" && existing.DisplayName != ident.DisplayName {
				existing.DisplayName = ident.DisplayName
			}

			continue
		}

		s.records[ident.ID] = &models.Record{
			ID:          ident.ID,
			DisplayName: ident.DisplayName,
			Status:      models.StatusUnset,
		}
		added++
	}

	return added
}

// Pending returns the identifiers eligible for probing this episode:
// everything not yet successful, or the entire ledger under force mode.
func (s *Store) Pending(force bool) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]models.Record, 0, len(s.records))

	for _, rec := range s.records {
		if force || rec.Status != models.StatusSuccess {
			pending = append(pending, *rec)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].DisplayName != pending[j].DisplayName {
			return pending[i].DisplayName < pending[j].DisplayName
		}

		return pending[i].ID < pending[j].ID
	})

	return pending
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return models.Record{}, false
	}

	return *rec, true
}

// Commit applies one episode result to the record and atomically rewrites
// the durable store. When Commit returns nil the on-disk state reflects
// the result even if the process dies before the next identifier.
func (s *Store) Commit(id string, result models.EpisodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, id)
	}

	rec.Status = result.Status
	rec.Attempts = result.Attempts
	rec.LastStatusCode = result.LastStatusCode
	rec.LastChecked = result.CheckedAt.UTC()

	return s.rewrite()
}

// Flush rewrites the durable store from the current in-memory state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rewrite()
}

// rewrite writes the full snapshot to a temp file in the target directory
// and renames it over the ledger. Callers must hold s.mu.
func (s *Store) rewrite() error {
	dir := filepath.Dir(s.path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	tmpName := tmp.Name()

	if err := s.writeAll(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	// Sync before rename so the snapshot is durable, not just renamed.
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	if err := os.Chmod(tmpName, ledgerFileMode); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	return nil
}

func (s *Store) writeAll(f *os.File) error {
	rows := make([]*models.Record, 0, len(s.records))
	for _, rec := range s.records {
		rows = append(rows, rec)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DisplayName != rows[j].DisplayName {
			return rows[i].DisplayName < rows[j].DisplayName
		}

		return rows[i].ID < rows[j].ID
	})

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range rows {
		checked := ""
		if !rec.LastChecked.IsZero() {
			checked = rec.LastChecked.UTC().Format(time.RFC3339)
		}

		row := []string{
			rec.ID,
			rec.DisplayName,
			string(rec.Status),
			strconv.Itoa(rec.Attempts),
			rec.LastStatusCode,
			checked,
		}

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

// Counts reports success/timeout/pending/total across the whole ledger.
func (s *Store) Counts() (success, timeout, pending, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		switch rec.Status {
		case models.StatusSuccess:
			success++
		case models.StatusTimeout:
			timeout++
		case models.StatusUnset:
			pending++
		}
	}

	return success, timeout, pending, len(s.records)
}

// Len returns the number of records in the ledger.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
