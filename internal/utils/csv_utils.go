package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type CSVManager struct {
	basePath string
	now      func() time.Time
}

func NewCSVManager(basePath string) *CSVManager {
	return &CSVManager{
		basePath: basePath,
		now:      time.Now,
	}
}

// WriteHistory writes one export to {base}/csv/history/{symbol}/ and
// returns the file path. File names carry the row count and a timestamp so
// repeated exports never overwrite each other.
func (c *CSVManager) WriteHistory(symbol string, header []string, rows [][]string) (string, error) {
	dirPath := filepath.Join(c.basePath, "csv", "history", symbol)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	filename := fmt.Sprintf("%s_history_%d_records_%s.csv",
		symbol, len(rows), c.now().Format("20060102_150405"))
	filePath := filepath.Join(dirPath, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write rows: %w", err)
	}
	return filePath, nil
}

// CleanOldCSVFiles removes exports older than maxAge.
func (c *CSVManager) CleanOldCSVFiles(maxAge time.Duration) (int, error) {
	dir := filepath.Join(c.basePath, "csv", "history")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	removed := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".csv") && c.now().Sub(info.ModTime()) > maxAge {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove old file %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clean directory %s: %w", dir, err)
	}
	return removed, nil
}
