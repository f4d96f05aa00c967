package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Recognized secret names.
const (
	APSSID       = "AP_SSID"
	APPassword   = "AP_PASSWORD"
	WLANSSID     = "WLAN_SSID"
	WLANPassword = "WLAN_PASSWORD"
	MQTTEndpoint = "MQTT_ENDPOINT"
	MQTTClientID = "MQTT_CLIENT_ID"
)

// Unset is written for keys without a value.
const Unset = "unset"

// Keys lists every recognized name in baseline file order.
var Keys = []string{APSSID, APPassword, WLANSSID, WLANPassword, MQTTEndpoint, MQTTClientID}

var ErrInvalidName = errors.New("invalid secret name")

// Entry is a single assignment in the secrets file.
type Entry struct {
	Name  string
	Value string
}

// Store is a line-oriented NAME = value file. Every read goes to disk so
// values written by another component are visible immediately.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store backed by path, creating the baseline file with all
// recognized keys unset when it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path of the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat secrets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}
	lines := make([]string, 0, len(Keys))
	for _, name := range Keys {
		lines = append(lines, formatLine(name, ""))
	}
	return s.writeLines(lines)
}

// Get returns the value stored for name, or "" when it is absent or unset.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if key, value, ok := parseLine(line); ok && key == name {
			return value, nil
		}
	}
	return "", nil
}

// Set persists value for name and reports whether the stored value is
// non-empty. An empty value is stored as unset.
func (s *Store) Set(name, value string) (bool, error) {
	if !validName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	found := false
	for i, line := range lines {
		if key, _, ok := parseLine(line); ok && key == name {
			lines[i] = formatLine(name, value)
			found = true
		}
	}
	if !found {
		lines = append(lines, formatLine(name, value))
	}
	if err := s.writeLines(lines); err != nil {
		return false, err
	}
	return value != "", nil
}

// Entries lists all assignments in file order.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range lines {
		if key, value, ok := parseLine(line); ok {
			entries = append(entries, Entry{Name: key, Value: value})
		}
	}
	return entries, nil
}

func (s *Store) readLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	return lines, nil
}

func (s *Store) writeLines(lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".secrets-*")
	if err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}

func formatLine(name, value string) string {
	if value == "" {
		return name + " = " + Unset
	}
	return name + " = " + strconv.Quote(value)
}

// parseLine splits an assignment. Comments and blank lines are not
// assignments and are kept verbatim by Set.
func parseLine(line string) (name, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	name, raw, found := strings.Cut(trimmed, "=")
	if !found {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	if !validName(name) {
		return "", "", false
	}
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == Unset:
		return name, "", true
	case strings.HasPrefix(raw, `"`):
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return name, strings.Trim(raw, `"`), true
		}
		return name, unquoted, true
	default:
		return name, raw, true
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
