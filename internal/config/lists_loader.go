package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// listFileNames maps each canonical kind to its file inside the lists folder.
// Every file must exist: a missing kind is a load error, not an empty list.
var listFileNames = []string{"IP", "RDNS", "ASN", "USER_AGENT", "URI"}

// ListFileSuffix is the extension shared by all per-kind list files.
const ListFileSuffix = ".list"

// LoadListFiles reads the newline-delimited per-kind pattern files from the
// folder and returns the raw mapping the whitelist list store compiles. Entry
// order within each file is preserved because first match in list order wins.
func LoadListFiles(folder string) (map[string][]string, error) {
	raw := make(map[string][]string, len(listFileNames))
	for _, kind := range listFileNames {
		path := filepath.Join(folder, kind+ListFileSuffix)
		entries, err := readListFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: list %s: %w", kind, err)
		}
		raw[kind] = entries
	}
	return raw, nil
}

// readListFile returns the non-empty, non-comment lines of a list file in
// file order.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// isListFile reports whether a watcher event path names one of the per-kind
// list files.
func isListFile(path string) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ListFileSuffix) {
		return false
	}
	name := strings.TrimSuffix(base, ListFileSuffix)
	for _, kind := range listFileNames {
		if name == kind {
			return true
		}
	}
	return false
}
