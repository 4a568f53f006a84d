package excel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetcrm/domain/table"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "crm.xlsx"))
}

// writeWorkbook builds a document from sheet name -> raw rows, the way
// legacy tools would have written it.
func writeWorkbook(t *testing.T, path string, sheets map[string][][]interface{}, order []string) {
	t.Helper()
	f := excelize.NewFile()
	for i, name := range order {
		if i == 0 {
			f.SetSheetName("Sheet1", name)
		} else {
			f.NewSheet(name)
		}
		for rowIdx, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
}

func TestLoad_MissingDocumentCreatesHeaderOnly(t *testing.T) {
	store := newTestStore(t)

	c, err := store.Load()
	require.NoError(t, err)
	require.Len(t, c, len(table.AllKeys()))
	for _, key := range table.AllKeys() {
		assert.Empty(t, c[key], "table %s", key)
	}

	// The fresh document must exist with every canonical sheet.
	f, err := excelize.OpenFile(store.Path())
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Len(t, sheets, len(table.Specs()))
	for _, spec := range table.Specs() {
		assert.Contains(t, sheets, spec.Sheet)
		rows, err := f.GetRows(spec.Sheet)
		require.NoError(t, err)
		require.NotEmpty(t, rows, "sheet %s must carry a header row", spec.Sheet)
		assert.Equal(t, spec.Headers, rows[0])
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	c := table.NewCollection()
	c[table.Customers] = table.Table{
		{table.IDField: "c1", "Müşteri Adı": "Acme"},
	}
	require.NoError(t, store.Save(c))

	loaded, err := store.Load()
	require.NoError(t, err)

	require.Len(t, loaded[table.Customers], 1)
	row := loaded[table.Customers][0]
	assert.Equal(t, "c1", row[table.IDField])
	assert.Equal(t, "Acme", row["Müşteri Adı"])
	// Unset columns come back as empty strings, not nil.
	assert.Equal(t, "", row["Yetkili"])

	for _, key := range table.AllKeys() {
		if key == table.Customers {
			continue
		}
		assert.Empty(t, loaded[key], "table %s", key)
	}
}

func TestSaveLoad_ExtraColumnsSurvive(t *testing.T) {
	store := newTestStore(t)

	c := table.NewCollection()
	c[table.Goals] = table.Table{
		{table.IDField: "g1", "Yıl": "2026", "Çeyrek Notu": "Q1 güçlü"},
	}
	require.NoError(t, store.Save(c))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded[table.Goals], 1)
	assert.Equal(t, "Q1 güçlü", loaded[table.Goals][0]["Çeyrek Notu"])
}

func TestLoad_LegacySheetAlias(t *testing.T) {
	store := newTestStore(t)

	writeWorkbook(t, store.Path(), map[string][][]interface{}{
		"Faturalar": {
			{"ID", "Fatura No", "Tutar"},
			{"f1", "2024-001", "1.500,00"},
		},
	}, []string{"Faturalar"})

	c, err := store.Load()
	require.NoError(t, err)
	require.Len(t, c[table.Invoices], 1)
	assert.Equal(t, "f1", c[table.Invoices][0][table.IDField])

	// Saving writes the canonical name; the alias disappears.
	require.NoError(t, store.Save(c))
	f, err := excelize.OpenFile(store.Path())
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Evraklar")
	assert.NotContains(t, f.GetSheetList(), "Faturalar")
}

func TestLoad_FirstPresentCandidateWinsEvenIfEmpty(t *testing.T) {
	store := newTestStore(t)

	writeWorkbook(t, store.Path(), map[string][][]interface{}{
		"Evraklar": {
			{"ID", "Fatura No"},
		},
		"Faturalar": {
			{"ID", "Fatura No"},
			{"old1", "2019-001"},
		},
	}, []string{"Evraklar", "Faturalar"})

	c, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, c[table.Invoices], "canonical sheet is present and empty, alias must not be read")
}

func TestLoad_LowercaseIDNormalized(t *testing.T) {
	store := newTestStore(t)

	writeWorkbook(t, store.Path(), map[string][][]interface{}{
		"Müşteriler": {
			{"id", "Müşteri Adı"},
			{"c9", "Beta Ltd"},
		},
	}, []string{"Müşteriler"})

	c, err := store.Load()
	require.NoError(t, err)
	require.Len(t, c[table.Customers], 1)
	assert.Equal(t, "c9", c[table.Customers][0][table.IDField])
	_, hasLegacy := c[table.Customers][0]["id"]
	assert.False(t, hasLegacy)
}

func TestLoad_CorruptDocumentDegradesToEmpty(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("not a workbook"), 0o644))

	c, err := store.Load()
	require.NoError(t, err)
	for _, key := range table.AllKeys() {
		assert.Empty(t, c[key])
	}
	assert.True(t, store.Status().LastLoadDegraded)

	// A healthy load clears the flag.
	require.NoError(t, os.Remove(store.Path()))
	_, err = store.Load()
	require.NoError(t, err)
	assert.False(t, store.Status().LastLoadDegraded)
}

func TestCreateDocument_WithDemoData(t *testing.T) {
	store := newTestStore(t)

	path, err := store.CreateDocument(true)
	require.NoError(t, err)
	assert.Equal(t, store.Path(), path)

	c, err := store.Load()
	require.NoError(t, err)
	require.Len(t, c[table.Customers], 1)
	assert.Equal(t, table.DemoCustomerID, table.RowID(c[table.Customers][0]))
}

func TestCached_AdvisoryCopy(t *testing.T) {
	store := newTestStore(t)

	_, _, ok := store.Cached()
	assert.False(t, ok, "no cache before first save")

	c := table.NewCollection()
	c[table.Customers] = table.Table{{table.IDField: "c1"}}
	require.NoError(t, store.Save(c))

	cached, at, ok := store.Cached()
	require.True(t, ok)
	assert.False(t, at.IsZero())
	require.Len(t, cached[table.Customers], 1)

	// The cache hands out copies; mutating one must not leak back.
	cached[table.Customers][0][table.IDField] = "tampered"
	again, _, ok := store.Cached()
	require.True(t, ok)
	assert.Equal(t, "c1", again[table.Customers][0][table.IDField])

	store.Invalidate()
	_, _, ok = store.Cached()
	assert.False(t, ok)
}

func TestUpdate_SerializesConcurrentMutations(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(table.NewCollection()))

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := store.Update(func(c table.Collection) (table.Collection, error) {
				c[table.Customers] = append(c[table.Customers], table.Row{
					table.IDField: fmt.Sprintf("c%d", n),
				})
				return c, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, c[table.Customers], writers, "no update may be lost")
}

func TestUpdate_CallbackErrorSkipsSave(t *testing.T) {
	store := newTestStore(t)

	c := table.NewCollection()
	c[table.Customers] = table.Table{{table.IDField: "c1"}}
	require.NoError(t, store.Save(c))

	err := store.Update(func(table.Collection) (table.Collection, error) {
		return nil, fmt.Errorf("business rule rejected")
	})
	require.Error(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded[table.Customers], 1)
}
