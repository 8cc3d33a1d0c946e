package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
)

// DestinationMatcher resolves called-station ids against destination sets.
// Regular expressions are compiled once per destination and pattern and
// kept per set until that set is forgotten.
type DestinationMatcher struct {
	mu   sync.RWMutex
	sets map[snowflake.ID]map[snowflake.ID]compiledPattern
}

type compiledPattern struct {
	pattern string
	re      *regexp.Regexp
}

func NewDestinationMatcher() *DestinationMatcher {
	return &DestinationMatcher{sets: make(map[snowflake.ID]map[snowflake.ID]compiledPattern)}
}

// Forget drops the patterns compiled for the given destination sets.
func (m *DestinationMatcher) Forget(setIDs ...snowflake.ID) {
	m.mu.Lock()
	for _, id := range setIDs {
		delete(m.sets, id)
	}
	m.mu.Unlock()
}

func (m *DestinationMatcher) Reset() {
	m.mu.Lock()
	m.sets = make(map[snowflake.ID]map[snowflake.ID]compiledPattern)
	m.mu.Unlock()
}

// Resolve walks dests by lookup order, then id, and returns the first active
// destination matching called.
func (m *DestinationMatcher) Resolve(dests []ratedomain.Destination, called string) (*ratedomain.Destination, error) {
	ordered := make([]ratedomain.Destination, len(dests))
	copy(ordered, dests)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].LookupOrder != ordered[j].LookupOrder {
			return ordered[i].LookupOrder < ordered[j].LookupOrder
		}
		return ordered[i].ID < ordered[j].ID
	})

	for i := range ordered {
		dest := ordered[i]
		if !dest.Active {
			continue
		}
		ok, err := m.matches(dest, called)
		if err != nil {
			return nil, err
		}
		if ok {
			return &dest, nil
		}
	}
	return nil, ratedomain.ErrNoDestinationMatch
}

func (m *DestinationMatcher) matches(dest ratedomain.Destination, called string) (bool, error) {
	switch dest.MatchType {
	case ratedomain.MatchExact:
		return called == dest.MatchString, nil
	case ratedomain.MatchPrefix:
		return strings.HasPrefix(called, dest.MatchString), nil
	case ratedomain.MatchSuffix:
		return strings.HasSuffix(called, dest.MatchString), nil
	case ratedomain.MatchRegex:
		re, err := m.regex(dest)
		if err != nil {
			return false, err
		}
		return re.MatchString(called), nil
	}
	return false, fmt.Errorf("%w: destination %s has match type %q", ratedomain.ErrConfiguration, dest.ID, dest.MatchType)
}

func (m *DestinationMatcher) regex(dest ratedomain.Destination) (*regexp.Regexp, error) {
	m.mu.RLock()
	c, ok := m.sets[dest.SetID][dest.ID]
	m.mu.RUnlock()
	if ok && c.pattern == dest.MatchString {
		return c.re, nil
	}

	re, err := regexp.Compile(dest.MatchString)
	if err != nil {
		return nil, fmt.Errorf("%w: destination %s pattern %q: %v", ratedomain.ErrConfiguration, dest.ID, dest.MatchString, err)
	}

	m.mu.Lock()
	set, ok := m.sets[dest.SetID]
	if !ok {
		set = make(map[snowflake.ID]compiledPattern)
		m.sets[dest.SetID] = set
	}
	set[dest.ID] = compiledPattern{pattern: dest.MatchString, re: re}
	m.mu.Unlock()
	return re, nil
}

func (m *DestinationMatcher) compiledCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.sets {
		n += len(set)
	}
	return n
}
