package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/model"
)

func TestFormatting(t *testing.T) {
	assert.Equal(t, "R$ 1.234,50", brl(1234.5))
	assert.Equal(t, "R$ 0,99", brl(0.99))
	assert.Equal(t, "2", number(2))
	assert.Equal(t, "1,5", number(1.5))
	assert.Equal(t, "0,125", number(0.125))
	assert.Equal(t, "abc", truncateText("abc", 3))
	assert.Equal(t, "ab…", truncateText("abcd", 3))
}

func TestHintFor(t *testing.T) {
	auth := fmt.Errorf("opening session: %w", &mailbox.AuthError{Address: "a@b.com", Err: errors.New("no")})
	assert.Contains(t, hintFor(auth), "app password")

	llm := &extract.FileError{Path: "x.pdf", Err: &extract.ServiceUnavailableError{URL: "http://x", Reason: "is not running"}}
	assert.Contains(t, hintFor(llm), "model server")

	assert.Contains(t, hintFor(errNotConfigured), "notafiscal setup")
	assert.Empty(t, hintFor(errors.New("other")))
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	export := itemsExport{
		Items:   []model.LineItem{{DocumentLabel: "a.xml", Description: "Arroz", Quantity: 2, UnitValue: 10, TotalValue: 20}},
		Summary: items.Summary{Count: 1, Total: 20},
	}

	jsonPath := filepath.Join(dir, "items.json")
	require.NoError(t, writeOutput(jsonPath, export))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "itens")
	assert.Equal(t, 20.0, decoded["resumo"].(map[string]any)["valor_total"])

	yamlPath := filepath.Join(dir, "items.yaml")
	require.NoError(t, writeOutput(yamlPath, export))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var back itemsExport
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, export, back)

	assert.Error(t, writeOutput(filepath.Join(dir, "items.csv"), export))
}
