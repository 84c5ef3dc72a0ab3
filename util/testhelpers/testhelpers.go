// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package testhelpers holds the assertion shims shared by package tests.
package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireImpl fails the test on error, printing any extra context first.
func RequireImpl(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	if len(printables) > 0 {
		t.Log(printables...)
	}
	require.NoError(t, err)
}

// FailImpl fails the test immediately with the given context.
func FailImpl(t *testing.T, printables ...interface{}) {
	t.Helper()
	t.Fatal(printables...)
}
