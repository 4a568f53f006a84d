// Package excel implements the table store: whole-document load and
// save of the CRM workbook, one sheet per logical table.
package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"sheetcrm/domain/table"
	"sheetcrm/internal/errors"
)

// MimeXLSX is the content type used when uploading the document.
const MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Store provides whole-document access to the CRM workbook. All
// operations hold the store mutex, so load-mutate-save sequences run
// through Update are serialized by design rather than by accident.
//
// The post-save cache is advisory only: it goes stale after any
// modification of the underlying file not performed via this store
// (a sync download included). Correctness-critical callers must Load.
type Store struct {
	path string

	mu               sync.Mutex
	cached           table.Collection
	cachedAt         time.Time
	cacheValid       bool
	lastSavedAt      time.Time
	lastLoadDegraded bool
}

// DocumentStatus is a point-in-time snapshot of the store's state.
type DocumentStatus struct {
	Path             string    `json:"path"`
	Exists           bool      `json:"exists"`
	LastSavedAt      time.Time `json:"lastSavedAt"`
	LastLoadDegraded bool      `json:"lastLoadDegraded"`
}

// NewStore creates a store over the workbook at path. The file is not
// touched until the first operation.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole document and returns every logical table.
// A missing document is created header-only on the spot. An unreadable
// document degrades to an all-empty collection: the load path favors
// availability, and the degradation is recorded in Status so operators
// can tell "no data" from "corrupt document".
func (s *Store) Load() (table.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save rewrites the entire document from the given collection. The
// previous file is never mutated in place: a fresh workbook is built
// and moved over the old one, so a crash mid-write leaves the prior
// state intact. Write failures are fatal for the caller.
func (s *Store) Save(c table.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(c)
}

// Update runs a load-mutate-save sequence under one mutex hold. This
// is the serialization point for every mutating caller: two concurrent
// updates cannot interleave their loads and saves.
func (s *Store) Update(fn func(table.Collection) (table.Collection, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.saveLocked(next)
}

// CreateDocument builds a fresh document with the full sheet set,
// headers only, optionally seeding one demo customer row.
func (s *Store) CreateDocument(withDemoData bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createLocked(withDemoData); err != nil {
		return "", err
	}
	return s.path, nil
}

// Cached returns a deep copy of the last saved collection, if the
// advisory cache is still valid, along with the time it was cached.
func (s *Store) Cached() (table.Collection, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cacheValid {
		return nil, time.Time{}, false
	}
	return s.cached.Clone(), s.cachedAt, true
}

// Invalidate drops the advisory cache. The sync coordinator calls this
// after replacing the file with a downloaded copy.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.cacheValid = false
}

// Status reports the document's current state.
func (s *Store) Status() DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, statErr := os.Stat(s.path)
	return DocumentStatus{
		Path:             s.path,
		Exists:           statErr == nil,
		LastSavedAt:      s.lastSavedAt,
		LastLoadDegraded: s.lastLoadDegraded,
	}
}

func (s *Store) loadLocked() (table.Collection, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		log.Infof("[Store] document %s missing, creating header-only", s.path)
		if err := s.createLocked(false); err != nil {
			return nil, err
		}
		s.lastLoadDegraded = false
		return table.NewCollection(), nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		log.Errorf("[Store] unreadable document %s, serving empty tables: %v", s.path, err)
		s.lastLoadDegraded = true
		return table.NewCollection(), nil
	}
	defer f.Close()
	s.lastLoadDegraded = false

	present := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		present[name] = true
	}

	collection := table.NewCollection()
	for _, spec := range table.Specs() {
		for _, candidate := range spec.ReadCandidates {
			if !present[candidate] {
				continue
			}
			rows, err := f.GetRows(candidate)
			if err != nil {
				log.Errorf("[Store] sheet %s unreadable, treating as empty: %v", candidate, err)
				break
			}
			collection[spec.Key] = MaterializeRows(rows)
			// First present candidate wins, even when empty.
			break
		}
	}
	return collection, nil
}

func (s *Store) saveLocked(c table.Collection) error {
	f, err := buildWorkbook(c)
	if err != nil {
		return errors.DocumentWrite(fmt.Sprintf("build workbook for %s", s.path), err)
	}
	defer f.Close()

	if err := s.persistLocked(f); err != nil {
		return err
	}

	s.cached = c.Clone()
	s.cachedAt = time.Now()
	s.cacheValid = true
	s.lastSavedAt = s.cachedAt
	return nil
}

func (s *Store) createLocked(withDemoData bool) error {
	c := table.NewCollection()
	if withDemoData {
		c[table.Customers] = table.Table{table.DemoCustomerRow()}
	}
	f, err := buildWorkbook(c)
	if err != nil {
		return errors.DocumentWrite(fmt.Sprintf("build workbook for %s", s.path), err)
	}
	defer f.Close()
	return s.persistLocked(f)
}

// persistLocked saves the workbook to a temp file in the document's
// directory and renames it over the final path.
func (s *Store) persistLocked(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.DocumentWrite(fmt.Sprintf("create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".crm-*.xlsx")
	if err != nil {
		return errors.DocumentWrite("create temp file", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := f.SaveAs(tmpPath); err != nil {
		os.Remove(tmpPath)
		return errors.DocumentWrite(fmt.Sprintf("write document %s", s.path), err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.DocumentWrite(fmt.Sprintf("replace document %s", s.path), err)
	}
	return nil
}

// buildWorkbook constructs a brand-new workbook holding exactly one
// sheet per logical table under canonical names.
func buildWorkbook(c table.Collection) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, spec := range table.Specs() {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", spec.Sheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("rename sheet to %s: %w", spec.Sheet, err)
			}
		} else if _, err := f.NewSheet(spec.Sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", spec.Sheet, err)
		}

		headers := sheetHeaders(spec, c[spec.Key])
		headerRow := make([]interface{}, len(headers))
		for j, h := range headers {
			headerRow[j] = h
		}
		if err := f.SetSheetRow(spec.Sheet, "A1", &headerRow); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header row in %s: %w", spec.Sheet, err)
		}

		for rowIdx, row := range c[spec.Key] {
			values := make([]interface{}, len(headers))
			for j, h := range headers {
				if v, ok := row[h]; ok && v != nil {
					values[j] = v
				} else {
					values[j] = ""
				}
			}
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("address row %d in %s: %w", rowIdx+2, spec.Sheet, err)
			}
			if err := f.SetSheetRow(spec.Sheet, cell, &values); err != nil {
				f.Close()
				return nil, fmt.Errorf("write row %d in %s: %w", rowIdx+2, spec.Sheet, err)
			}
		}
	}
	return f, nil
}

// sheetHeaders returns the spec headers followed by any extra columns
// the rows carry, in sorted order, so free-form fields survive a save.
func sheetHeaders(spec table.Spec, t table.Table) []string {
	known := make(map[string]bool, len(spec.Headers))
	for _, h := range spec.Headers {
		known[h] = true
	}

	var extras []string
	seen := make(map[string]bool)
	for _, row := range t {
		for k := range row {
			if !known[k] && !seen[k] {
				seen[k] = true
				extras = append(extras, k)
			}
		}
	}
	sort.Strings(extras)
	return append(append([]string(nil), spec.Headers...), extras...)
}

// MaterializeRows converts raw sheet rows into table rows. The first
// row is the header; missing cells become empty strings, never nil.
// Rows with no non-empty cell are dropped.
func MaterializeRows(rows [][]string) table.Table {
	if len(rows) < 1 {
		return table.Table{}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	out := table.Table{}
	for _, raw := range rows[1:] {
		row := make(table.Row, len(headers))
		empty := true
		for j, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if j < len(raw) {
				value = raw[j]
			}
			if value != "" {
				empty = false
			}
			row[header] = value
		}
		if empty {
			continue
		}
		table.NormalizeRowID(row)
		out = append(out, row)
	}
	return out
}
