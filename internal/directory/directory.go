package directory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Record binds a station name to the address it serves on.
type Record struct {
	Name string
	Addr string
}

// Directory lists the records whose name matches a LIKE pattern.
type Directory interface {
	List(ctx context.Context, pattern string) ([]Record, error)
}

// Static is an in-memory directory. It's safe for concurrent use.
type Static struct {
	mu      sync.RWMutex
	records map[string]string
}

// NewStatic creates a directory holding records.
func NewStatic(records ...Record) *Static {
	s := &Static{records: make(map[string]string, len(records))}
	for _, r := range records {
		s.records[r.Name] = r.Addr
	}
	return s
}

// List returns matching records ordered by name.
func (s *Static) List(_ context.Context, pattern string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for name, addr := range s.records {
		if Match(pattern, name) {
			out = append(out, Record{Name: name, Addr: addr})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Publish adds or replaces a record.
func (s *Static) Publish(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Name] = r.Addr
	return nil
}

// Unpublish removes a record. Unknown names are ignored.
func (s *Static) Unpublish(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

// Match reports whether name matches a LIKE pattern where % matches any run
// of characters and _ matches exactly one. Matching is case sensitive.
func Match(pattern, name string) bool {
	var (
		p = []rune(pattern)
		n = []rune(name)
		// star is the position in p after the last %, and mark the position
		// in n it was matched against.
		star, mark = -1, 0
		i, j       int
	)

	for j < len(n) {
		switch {
		case i < len(p) && p[i] == '%':
			star, mark = i+1, j
			i++
		case i < len(p) && (p[i] == '_' || p[i] == n[j]):
			i++
			j++
		case star >= 0:
			mark++
			i, j = star, mark
		default:
			return false
		}
	}
	for i < len(p) && p[i] == '%' {
		i++
	}
	return i == len(p)
}

// ParseRecords parses "name1=addr1,name2=addr2".
func ParseRecords(s string) ([]Record, error) {
	if strings.TrimSpace(s) == "" {
		return []Record{}, nil
	}

	parts := strings.Split(s, ",")
	records := make([]Record, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, &FormatError{Entry: part}
		}
		name, addr := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if name == "" || addr == "" {
			return nil, &FormatError{Entry: part}
		}
		records = append(records, Record{Name: name, Addr: addr})
	}
	return records, nil
}

// FormatError reports an entry that is not name=addr.
type FormatError struct {
	Entry string
}

func (e *FormatError) Error() string {
	return "invalid endpoint " + strconv.Quote(e.Entry) + " (expected name=addr)"
}
