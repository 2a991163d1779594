package config

import (
	"os"
	"strings"
	"sync"
)

// SharedCredentials is the process-wide set of named upstream credentials,
// captured at startup and extended by Capture when new names appear.
type SharedCredentials struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSharedCredentials builds a credential set from explicit name/value pairs.
func NewSharedCredentials(values map[string]string) *SharedCredentials {
	out := make(map[string]string, len(values))
	for name, value := range values {
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return &SharedCredentials{values: out}
}

// CaptureSharedCredentials merges config-file values with environment variables
// for the given names. Environment values win.
func CaptureSharedCredentials(fileValues map[string]string, names []string, getenv func(string) string) *SharedCredentials {
	creds := NewSharedCredentials(fileValues)
	creds.Capture(names, getenv)
	return creds
}

// Capture reads the environment for names and stores every non-empty value,
// replacing file values. It returns how many names were not known before.
func (s *SharedCredentials) Capture(names []string, getenv func(string) string) int {
	if s == nil {
		return 0
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string, len(names))
	}
	added := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value := strings.TrimSpace(getenv(name))
		if value == "" {
			continue
		}
		if _, known := s.values[name]; !known {
			added++
		}
		s.values[name] = value
	}
	return added
}

// Lookup returns the credential registered under name.
func (s *SharedCredentials) Lookup(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[strings.TrimSpace(name)]
	return value, ok
}

// Len returns the number of captured credentials.
func (s *SharedCredentials) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
