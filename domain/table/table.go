package table

import (
	"fmt"
	"strings"
)

// Key identifies a logical table inside the CRM document.
type Key string

const (
	Customers       Key = "customers"
	Quotes          Key = "quotes"
	Proformas       Key = "proformas"
	Invoices        Key = "invoices"
	Orders          Key = "orders"
	ETA             Key = "eta"
	Fairs           Key = "fairs"
	Interactions    Key = "interactions"
	PaymentPlans    Key = "paymentPlans"
	Goals           Key = "goals"
	Representatives Key = "representatives"
)

// IDField is the canonical row identifier column. Legacy rows may carry
// the lowercase variant instead; NormalizeRowID folds it in.
const (
	IDField       = "ID"
	legacyIDField = "id"
)

// Row is a free-form record keyed by column name. Column names are the
// Turkish headers as they appear in the document.
type Row map[string]any

// Table is an ordered list of rows.
type Table []Row

// Collection maps every logical table to its rows.
type Collection map[Key]Table

// Spec describes how one logical table maps onto the document.
// ReadCandidates is tried in order on load; the canonical Sheet name is
// always first and is the only name ever written.
type Spec struct {
	Key            Key
	Sheet          string
	ReadCandidates []string
	Headers        []string
}

var specs = []Spec{
	{
		Key:            Customers,
		Sheet:          "Müşteriler",
		ReadCandidates: []string{"Müşteriler"},
		Headers: []string{
			IDField, "Müşteri Adı", "Yetkili", "E-posta", "Telefon",
			"Ülke", "Şehir", "Adres", "Temsilci",
			"Oluşturma Tarihi", "Güncelleme Tarihi",
		},
	},
	{
		Key:            Quotes,
		Sheet:          "Teklifler",
		ReadCandidates: []string{"Teklifler"},
		Headers: []string{
			IDField, "Teklif No", "Müşteri Adı", "Tarih", "Tutar",
			"Para Birimi", "Durum", "Termin Tarihi", "Oluşturma Tarihi",
		},
	},
	{
		Key:            Proformas,
		Sheet:          "Proformalar",
		ReadCandidates: []string{"Proformalar"},
		Headers: []string{
			IDField, "Proforma No", "Müşteri Adı", "Tarih", "Tutar",
			"Para Birimi", "Durum", "Termin Tarihi", "Oluşturma Tarihi",
		},
	},
	{
		Key:   Invoices,
		Sheet: "Evraklar",
		// Faturalar is the pre-rename sheet; older documents still use it.
		ReadCandidates: []string{"Evraklar", "Faturalar"},
		Headers: []string{
			IDField, "Fatura No", "Müşteri Adı", "Fatura Tarihi",
			"Vade Tarihi", "Tutar", "Ödenen Tutar", "Kalan Bakiye",
			"Vade (Gün)", "Durum",
		},
	},
	{
		Key:            Orders,
		Sheet:          "Siparişler",
		ReadCandidates: []string{"Siparişler"},
		Headers: []string{
			IDField, "Sipariş No", "Müşteri Adı", "Tarih", "Tutar",
			"Sevk Tarihi", "Termin Tarihi", "Durum",
		},
	},
	{
		Key:            ETA,
		Sheet:          "ETA",
		ReadCandidates: []string{"ETA"},
		Headers: []string{
			IDField, "Sipariş No", "Müşteri Adı", "Sevk Tarihi",
			"ETA Tarihi", "Ulaşma Tarihi", "Durum",
		},
	},
	{
		Key:            Fairs,
		Sheet:          "Fuar Kayıtları",
		ReadCandidates: []string{"Fuar Kayıtları", "FuarMusteri"},
		Headers: []string{
			IDField, "Fuar Adı", "Müşteri Adı", "Yetkili", "Telefon",
			"E-posta", "Ülke", "Tarih", "Görüşme Kalitesi", "Notlar",
		},
	},
	{
		Key:            Interactions,
		Sheet:          "Etkileşim Günlüğü",
		ReadCandidates: []string{"Etkileşim Günlüğü"},
		Headers: []string{
			IDField, "Müşteri Adı", "Tarih", "Tür", "Temsilci", "Notlar",
		},
	},
	{
		Key:            PaymentPlans,
		Sheet:          "Tahsilat Planı",
		ReadCandidates: []string{"Tahsilat Planı"},
		Headers: []string{
			IDField, "Müşteri Adı", "Fatura No", "Vade Tarihi", "Tutar",
			"Ödenen Tutar", "Kalan Bakiye", "Vade (Gün)", "Durum",
		},
	},
	{
		Key:            Goals,
		Sheet:          "Hedefler",
		ReadCandidates: []string{"Hedefler"},
		Headers: []string{
			IDField, "Yıl", "Ciro Hedefi", "Gerçekleşen", "Para Birimi",
		},
	},
	{
		Key:            Representatives,
		Sheet:          "Temsilciler",
		ReadCandidates: []string{"Temsilciler"},
		Headers: []string{
			IDField, "Ad Soyad", "Bölge", "Ülkeler", "E-posta", "Telefon",
		},
	},
}

// Specs returns every table spec in stable document order.
func Specs() []Spec {
	return specs
}

// AllKeys returns the logical table keys in stable order.
func AllKeys() []Key {
	keys := make([]Key, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.Key)
	}
	return keys
}

// SpecFor returns the spec for a logical table key.
func SpecFor(key Key) (Spec, bool) {
	for _, s := range specs {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}

// KeyFromString resolves a string to a known logical table key.
func KeyFromString(s string) (Key, bool) {
	for _, spec := range specs {
		if string(spec.Key) == s {
			return spec.Key, true
		}
	}
	return "", false
}

// NewCollection returns a collection holding every logical table,
// each empty. Loads build on this so no table is ever absent.
func NewCollection() Collection {
	c := make(Collection, len(specs))
	for _, s := range specs {
		c[s.Key] = Table{}
	}
	return c
}

// NormalizeRowID folds the legacy lowercase identifier key into the
// canonical ID field. Applied immediately after load and import so the
// rest of the system only ever sees "ID".
func NormalizeRowID(row Row) {
	if row == nil {
		return
	}
	legacy, hasLegacy := row[legacyIDField]
	if !hasLegacy {
		return
	}
	if current, ok := row[IDField]; !ok || asString(current) == "" {
		row[IDField] = legacy
	}
	delete(row, legacyIDField)
}

// RowID returns the row identifier, tolerating either casing on input.
func RowID(row Row) string {
	if v, ok := row[IDField]; ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	if v, ok := row[legacyIDField]; ok {
		return asString(v)
	}
	return ""
}

// DemoCustomerID marks the seeded demo row so callers can filter it
// out of "do we have real data" checks.
const DemoCustomerID = "DEMO-0001"

// DemoCustomerRow returns the illustrative row used when a document is
// created with demo data.
func DemoCustomerRow() Row {
	return Row{
		IDField:         DemoCustomerID,
		"Müşteri Adı":   "Örnek Müşteri A.Ş.",
		"Yetkili":       "Ayşe Yılmaz",
		"E-posta":       "ornek@example.com",
		"Telefon":       "+90 212 000 00 00",
		"Ülke":          "Türkiye",
		"Şehir":         "İstanbul",
		"Temsilci":      "Demo",
		"Oluşturma Tarihi": "2024-01-01",
	}
}

// Clone deep-copies a collection. Rows are copied map-by-map; values
// are scalars so a shallow value copy is enough.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for key, t := range c {
		out[key] = t.Clone()
	}
	return out
}

// Clone deep-copies a table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for i, row := range t {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
