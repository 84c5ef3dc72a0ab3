// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package extract

import (
	"github.com/pkg/errors"

	"github.com/felipebarte/cnab/cnab"
)

// mod10 computes the FEBRABAN alternating-weight check digit: weights 2,1
// from the right, digits of two-digit products summed.
func mod10(digits string) int {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		p := int(digits[i]-'0') * weight
		if p > 9 {
			p = p/10 + p%10
		}
		sum += p
		if weight == 2 {
			weight = 1
		} else {
			weight = 2
		}
	}
	dv := (10 - sum%10) % 10
	return dv
}

// mod11 computes the general check digit over título barcodes: weights 2..9
// cycling from the right; results 0, 10 and 11 map to 1.
func mod11(digits string) int {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv == 0 || dv == 10 || dv == 11 {
		return 1
	}
	return dv
}

// DigitableToBarcode rearranges a 47-digit linha digitável into the
// 44-digit título barcode, verifying the three field check digits and the
// general check digit on the way.
func DigitableToBarcode(ld string) (string, error) {
	ld = cnab.Digits(ld)
	if len(ld) != 47 {
		return "", errors.Errorf("linha digitável has %d digits, want 47", len(ld))
	}

	// Fields 1..3 carry their own mod-10 digit.
	if mod10(ld[0:9]) != int(ld[9]-'0') {
		return "", errors.New("linha digitável field 1 check digit mismatch")
	}
	if mod10(ld[10:20]) != int(ld[20]-'0') {
		return "", errors.New("linha digitável field 2 check digit mismatch")
	}
	if mod10(ld[21:31]) != int(ld[31]-'0') {
		return "", errors.New("linha digitável field 3 check digit mismatch")
	}

	barcode := ld[0:4] + ld[32:33] + ld[33:47] + ld[4:9] + ld[10:20] + ld[21:31]
	if !TituloBarcodeValid(barcode) {
		return "", errors.New("barcode general check digit mismatch")
	}
	return barcode, nil
}

// TituloBarcodeValid verifies the mod-11 general check digit at position 5
// of a 44-digit título barcode.
func TituloBarcodeValid(code string) bool {
	if len(code) != 44 || !cnab.AllDigits(code) {
		return false
	}
	return mod11(code[0:4]+code[5:]) == int(code[4]-'0')
}

// BarcodeToDigitable is the inverse rearrangement, computing the three
// field check digits. The input must already carry a valid general digit.
func BarcodeToDigitable(code string) (string, error) {
	if !TituloBarcodeValid(code) {
		return "", errors.New("not a valid 44-digit título barcode")
	}
	f1 := code[0:4] + code[19:24]
	f2 := code[24:34]
	f3 := code[34:44]
	dv := code[4:5]
	fator := code[5:19]

	out := make([]byte, 0, 47)
	out = append(out, f1...)
	out = append(out, byte('0'+mod10(f1)))
	out = append(out, f2...)
	out = append(out, byte('0'+mod10(f2)))
	out = append(out, f3...)
	out = append(out, byte('0'+mod10(f3)))
	out = append(out, dv...)
	out = append(out, fator...)
	return string(out), nil
}
