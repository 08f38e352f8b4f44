package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gamedex-scraper/pkg/models"
)

// LoadCatalog reads the group catalog file: one "name = numericId" pair per
// line. Numeric values may carry thousands separators ("Nintendo 64 = 1,452").
// Blank lines, comment lines (#) and lines that fail to parse are skipped.
func LoadCatalog(path string) ([]models.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	var groups []models.Group
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
		if name == "" {
			continue
		}
		id, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		groups = append(groups, models.Group{Name: name, ID: id})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return groups, nil
}
