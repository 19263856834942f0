package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitos/crypto_backtest/internal/domain"
)

// WriteSummaryJSON writes the run summary as indented JSON, replacing path atomically.
func WriteSummaryJSON(path string, run *domain.RunSummary) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".summary-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ReadSummaryJSON(path string) (*domain.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run domain.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &run, nil
}
