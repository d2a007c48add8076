package generator

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// LoadNames reads one worker name per line, skipping blank lines and
// lines starting with '#'. Names that would break a delimited export are rejected.
func LoadNames(path string, delimiter rune) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only name list.
			_ = cerr
		}
	}()

	var names []string
	seen := map[string]struct{}{}
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if !validName(name, delimiter) {
			return nil, fmt.Errorf("invalid worker name on line %d: %q", line, name)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("name list is empty")
	}
	return names, nil
}

func validName(name string, delimiter rune) bool {
	for _, r := range name {
		if r == delimiter || r == '"' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
