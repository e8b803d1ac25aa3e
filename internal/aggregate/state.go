package aggregate

// DesiredState maps document identities to their serialized payloads in the
// order they were produced. Identities are unique.
type DesiredState struct {
	keys    []string
	entries map[string]string
}

// NewDesiredState returns an empty state
func NewDesiredState() *DesiredState {
	return &DesiredState{entries: make(map[string]string)}
}

// Set stores payload under key, keeping the position of an existing key
func (s *DesiredState) Set(key, payload string) {
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	if _, ok := s.entries[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.entries[key] = payload
}

func (s *DesiredState) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.entries[key]
	return v, ok
}

// Keys returns the identities in insertion order
func (s *DesiredState) Keys() []string {
	if s == nil {
		return nil
	}
	return s.keys
}

func (s *DesiredState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
