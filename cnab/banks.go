// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab

// Bank describes the layout quirks of one institution. The base FEBRABAN
// layout covers every field position; banks only carry the handful of
// choices the published supplements leave to them.
type Bank struct {
	Code string
	Name string

	// TrailerCountsAllLines selects the meaning of the file trailer's
	// total_registros field: true counts every line in the file (the
	// FEBRABAN base convention), false counts detail records only. The
	// supplements disagree bank by bank, so the validator reads it from
	// here instead of hardcoding one convention.
	TrailerCountsAllLines bool
}

// Banks supported with their published supplements. An unknown code falls
// back to the base FEBRABAN layout and the parser flags BANK_UNKNOWN.
var banks = map[string]Bank{
	"001": {Code: "001", Name: "BANCO DO BRASIL", TrailerCountsAllLines: true},
	"033": {Code: "033", Name: "SANTANDER", TrailerCountsAllLines: true},
	"077": {Code: "077", Name: "INTER", TrailerCountsAllLines: true},
	"104": {Code: "104", Name: "CAIXA ECONOMICA FEDERAL", TrailerCountsAllLines: false},
	"237": {Code: "237", Name: "BRADESCO", TrailerCountsAllLines: true},
	"341": {Code: "341", Name: "ITAU", TrailerCountsAllLines: true},
	"422": {Code: "422", Name: "SAFRA", TrailerCountsAllLines: true},
	"748": {Code: "748", Name: "SICREDI", TrailerCountsAllLines: false},
	"756": {Code: "756", Name: "SICOOB", TrailerCountsAllLines: true},
}

// LookupBank resolves a 3-digit bank code. ok is false for codes without a
// shipped supplement; callers then use BaseBank.
func LookupBank(code string) (Bank, bool) {
	b, ok := banks[code]
	return b, ok
}

// BaseBank is the fallback for unknown institutions: the unmodified
// FEBRABAN base layout.
func BaseBank(code string) Bank {
	return Bank{Code: code, Name: "", TrailerCountsAllLines: true}
}
