package materialize

import (
	"strings"
	"time"
)

// ExtractedInvoice mirrors the field mapping produced by the upstream OCR
// worker. Field names are the Polish invoice domain names the producer
// emits.
type ExtractedInvoice struct {
	NumerFaktury    string     `json:"numer_faktury"`
	DataWystawienia string     `json:"data_wystawienia"`
	DataSprzedazy   string     `json:"data_sprzedazy,omitempty"`
	Sprzedawca      Party      `json:"sprzedawca"`
	Nabywca         *Party     `json:"nabywca,omitempty"`
	Pozycje         []LineItem `json:"pozycje"`
	SumaNetto       *float64   `json:"suma_netto,omitempty"`
	SumaBrutto      *float64   `json:"suma_brutto,omitempty"`
	Waluta          string     `json:"waluta,omitempty"`
}

// Party is a seller or buyer block in the extracted fields.
type Party struct {
	Nazwa       string `json:"nazwa"`
	NIP         string `json:"nip,omitempty"`
	Ulica       string `json:"ulica,omitempty"`
	Miasto      string `json:"miasto,omitempty"`
	KodPocztowy string `json:"kod_pocztowy,omitempty"`
}

// LineItem is one invoice position.
type LineItem struct {
	Nazwa         string   `json:"nazwa"`
	Ilosc         *float64 `json:"ilosc,omitempty"`
	Jednostka     string   `json:"jednostka,omitempty"`
	CenaNetto     *float64 `json:"cena_netto,omitempty"`
	WartoscNetto  *float64 `json:"wartosc_netto,omitempty"`
	WartoscBrutto *float64 `json:"wartosc_brutto,omitempty"`
	StawkaVAT     string   `json:"stawka_vat,omitempty"`
}

// dateLayouts covers the formats the OCR producer has been seen emitting.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "02-01-2006", "2006/01/02"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeNIP strips separators so dedupe by NIP is format-insensitive.
func normalizeNIP(nip string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(nip))
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "PLN"
	}
	return code
}
