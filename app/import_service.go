package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"sheetcrm/adapters/excel"
	"sheetcrm/adapters/normalize"
	"sheetcrm/domain/table"
	"sheetcrm/internal/errors"
)

// MergeMode selects how imported rows fold into an existing table.
type MergeMode string

const (
	// ModeReplace discards the existing table in favor of the import.
	ModeReplace MergeMode = "replace"
	// ModeAppend concatenates imported rows after existing ones,
	// without de-duplication.
	ModeAppend MergeMode = "append"
)

// ParseMergeMode resolves a caller-supplied mode string.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeReplace:
		return ModeReplace, nil
	case ModeAppend:
		return ModeAppend, nil
	}
	return "", errors.InvalidInput(fmt.Sprintf("unknown merge mode %q", s))
}

// SheetResult reports one sheet's import.
type SheetResult struct {
	Success      bool   `json:"success"`
	RowsImported int    `json:"rowsImported,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ImportOutcome reports a whole import. A failing sheet never aborts
// the others: partial success is reported, not rolled back.
type ImportOutcome struct {
	Success bool                   `json:"success"`
	Sheets  map[string]SheetResult `json:"perSheetResults"`
}

// sheetMapping resolves incoming sheet names to logical tables.
// Canonical names, legacy aliases and English export names all fold
// into the same table.
var sheetMapping = buildSheetMapping()

func buildSheetMapping() map[string]table.Key {
	m := make(map[string]table.Key)
	for _, spec := range table.Specs() {
		for _, name := range spec.ReadCandidates {
			m[name] = spec.Key
		}
	}
	english := map[string]table.Key{
		"Customers":       table.Customers,
		"Quotes":          table.Quotes,
		"Proformas":       table.Proformas,
		"Invoices":        table.Invoices,
		"Orders":          table.Orders,
		"Fairs":           table.Fairs,
		"Interactions":    table.Interactions,
		"PaymentPlans":    table.PaymentPlans,
		"Payment Plans":   table.PaymentPlans,
		"Goals":           table.Goals,
		"Representatives": table.Representatives,
	}
	for name, key := range english {
		m[name] = key
	}
	return m
}

// ImportService folds an externally supplied multi-sheet workbook into
// the table store.
type ImportService struct {
	store      *excel.Store
	normalizer *normalize.Normalizer
}

// NewImportService creates an import service writing through the store.
func NewImportService(store *excel.Store, normalizer *normalize.Normalizer) *ImportService {
	return &ImportService{store: store, normalizer: normalizer}
}

// Import reads the workbook at sourcePath, normalizes every mapped
// sheet and persists the merged collection in one serialized write.
func (s *ImportService) Import(ctx context.Context, sourcePath string, mode MergeMode) (*ImportOutcome, error) {
	f, err := excelize.OpenFile(sourcePath)
	if err != nil {
		return nil, errors.ImportError(fmt.Sprintf("open import file %s", sourcePath), err)
	}
	defer f.Close()

	outcome := &ImportOutcome{Sheets: make(map[string]SheetResult)}
	imported := make(map[table.Key]table.Table)
	order := []table.Key{}

	for _, sheetName := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, errors.ImportError("import cancelled", err)
		}

		key, ok := sheetMapping[sheetName]
		if !ok {
			log.Infof("[Import] sheet %q has no table mapping, skipped", sheetName)
			outcome.Sheets[sheetName] = SheetResult{Success: false, Error: "no mapping for sheet"}
			continue
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Errorf("[Import] sheet %q unreadable: %v", sheetName, err)
			outcome.Sheets[sheetName] = SheetResult{Success: false, Error: err.Error()}
			continue
		}

		t := excel.MaterializeRows(rows)
		for _, row := range t {
			s.normalizeRow(row)
		}

		if _, seen := imported[key]; !seen {
			order = append(order, key)
		}
		imported[key] = append(imported[key], t...)
		outcome.Sheets[sheetName] = SheetResult{Success: true, RowsImported: len(t)}
		log.Infof("[Import] sheet %q -> %s (%d rows)", sheetName, key, len(t))
	}

	if len(imported) == 0 {
		return outcome, nil
	}

	err = s.store.Update(func(current table.Collection) (table.Collection, error) {
		for _, key := range order {
			if mode == ModeReplace {
				current[key] = imported[key]
			} else {
				current[key] = append(current[key], imported[key]...)
			}
		}
		return current, nil
	})
	if err != nil {
		return outcome, errors.Wrap(err, "persist imported tables")
	}

	for _, r := range outcome.Sheets {
		if r.Success {
			outcome.Success = true
			break
		}
	}
	return outcome, nil
}

// normalizeRow assigns a missing identifier and applies the value
// normalizer to the fixed date and amount column sets.
func (s *ImportService) normalizeRow(row table.Row) {
	table.NormalizeRowID(row)
	if table.RowID(row) == "" {
		row[table.IDField] = uuid.NewString()
	}

	for column, value := range row {
		switch {
		case s.normalizer.IsDateColumn(column):
			row[column] = s.normalizer.Date(value)
		case s.normalizer.IsAmountColumn(column):
			row[column] = s.normalizer.Amount(value)
		}
	}
}
