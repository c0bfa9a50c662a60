// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package process

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// readLoopItems loads one loop item per row from the input file.
// CSV and XLSX files contribute the first column of each row; any other
// file contributes one trimmed line per item. Empty rows are skipped.
func readLoopItems(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVItems(path)
	case ".xlsx":
		return readXLSXItems(path)
	default:
		return readTextItems(path)
	}
}

func readCSVItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var items []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if item := strings.TrimSpace(row[0]); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

func readXLSXItems(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var items []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if item := strings.TrimSpace(row[0]); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

func readTextItems(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var items []string
	for _, line := range strings.Split(string(data), "\n") {
		if item := strings.TrimSpace(line); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}
