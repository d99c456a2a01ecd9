package searchindex

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/YaleSpinup/mds-api/metadata"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	btr "github.com/tidwall/btree"
)

// Index is an in-memory search index over entity metadata documents,
// partitioned by account. Terms are kept in an ordered btree per account so
// token lookups can also match by prefix.
type Index struct {
	mux      sync.RWMutex
	accounts map[string]*accountIndex
}

type accountIndex struct {
	docs  map[string]*metadata.Metadata
	terms *btr.BTree
}

type termEntry struct {
	term string
	urns map[string]struct{}
}

func byTerms(a, b interface{}) bool {
	t1, t2 := a.(*termEntry), b.(*termEntry)
	return t1.term < t2.term
}

// New creates an empty search index
func New() *Index {
	return &Index{
		accounts: make(map[string]*accountIndex),
	}
}

// Index adds or replaces an entity metadata document in the account's index
func (i *Index) Index(account string, m *metadata.Metadata) error {
	if account == "" {
		return errors.New("empty account")
	}

	if m == nil || m.URN == "" {
		return errors.New("metadata document requires a urn")
	}

	i.mux.Lock()
	defer i.mux.Unlock()

	ai, ok := i.accounts[account]
	if !ok {
		ai = &accountIndex{
			docs:  make(map[string]*metadata.Metadata),
			terms: btr.New(byTerms),
		}
		i.accounts[account] = ai
	}

	// replace any previously indexed version of this entity
	if old, ok := ai.docs[m.URN]; ok {
		ai.removeTerms(old)
	}

	doc := *m
	ai.docs[m.URN] = &doc

	for _, term := range termsFor(&doc) {
		var entry *termEntry
		if item := ai.terms.Get(&termEntry{term: term}); item != nil {
			entry = item.(*termEntry)
		} else {
			entry = &termEntry{term: term, urns: make(map[string]struct{})}
			ai.terms.Set(entry)
		}
		entry.urns[doc.URN] = struct{}{}
	}

	log.Debugf("indexed entity %s for account %s", doc.URN, account)

	return nil
}

// Remove drops an entity from the account's index
func (i *Index) Remove(account, urn string) {
	i.mux.Lock()
	defer i.mux.Unlock()

	ai, ok := i.accounts[account]
	if !ok {
		return
	}

	doc, ok := ai.docs[urn]
	if !ok {
		return
	}

	ai.removeTerms(doc)
	delete(ai.docs, urn)

	log.Debugf("removed entity %s from index for account %s", urn, account)
}

func (ai *accountIndex) removeTerms(m *metadata.Metadata) {
	for _, term := range termsFor(m) {
		item := ai.terms.Get(&termEntry{term: term})
		if item == nil {
			continue
		}

		entry := item.(*termEntry)
		delete(entry.urns, m.URN)
		if len(entry.urns) == 0 {
			ai.terms.Delete(entry)
		}
	}
}

// Search executes a query against the account's index
func (i *Index) Search(account string, input *metadata.SearchInput) (*metadata.SearchResult, error) {
	if input == nil {
		return nil, errors.New("empty search input")
	}

	if input.Start < 0 || input.Count < 0 {
		return nil, errors.New("start and count must not be negative")
	}

	count := input.Count
	if count == 0 {
		count = metadata.DefaultSearchCount
	}

	i.mux.RLock()
	defer i.mux.RUnlock()

	result := &metadata.SearchResult{
		Query:    input.Query,
		Start:    input.Start,
		Count:    count,
		Entities: []*metadata.Metadata{},
	}

	ai, ok := i.accounts[account]
	if !ok {
		return result, nil
	}

	matched := ai.match(input.Query)

	urns := make([]string, 0, len(matched))
	for urn := range matched {
		doc := ai.docs[urn]
		if doc == nil {
			continue
		}

		if !matchesFilters(doc, input) {
			continue
		}

		urns = append(urns, urn)
	}
	sort.Strings(urns)

	result.Total = len(urns)

	for idx := input.Start; idx < len(urns) && len(result.Entities) < count; idx++ {
		doc := *ai.docs[urns[idx]]
		result.Entities = append(result.Entities, &doc)
	}

	return result, nil
}

// match resolves the query into the set of candidate urns. An empty query or
// "*" matches every document. Otherwise every token must match, where a token
// matches a term by equality or prefix.
func (ai *accountIndex) match(query string) map[string]struct{} {
	query = strings.TrimSpace(query)
	if query == "" || query == "*" {
		all := make(map[string]struct{}, len(ai.docs))
		for urn := range ai.docs {
			all[urn] = struct{}{}
		}
		return all
	}

	var matched map[string]struct{}
	for _, token := range tokenize(query) {
		tokenMatches := make(map[string]struct{})

		pivot := &termEntry{term: token}
		ai.terms.Ascend(pivot, func(item interface{}) bool {
			entry := item.(*termEntry)
			if !strings.HasPrefix(entry.term, token) {
				return false
			}
			for urn := range entry.urns {
				tokenMatches[urn] = struct{}{}
			}
			return true
		})

		if matched == nil {
			matched = tokenMatches
			continue
		}

		for urn := range matched {
			if _, ok := tokenMatches[urn]; !ok {
				delete(matched, urn)
			}
		}

		if len(matched) == 0 {
			break
		}
	}

	if matched == nil {
		matched = map[string]struct{}{}
	}

	return matched
}

func matchesFilters(doc *metadata.Metadata, input *metadata.SearchInput) bool {
	// soft deleted entities stay out of results unless explicitly requested
	if removed, ok := input.Filters["removed"]; ok {
		if removed != "all" && doc.Removed != (removed == "true") {
			return false
		}
	} else if doc.Removed {
		return false
	}

	if len(input.EntityTypes) > 0 {
		found := false
		for _, et := range input.EntityTypes {
			if doc.EntityType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for key, value := range input.Filters {
		switch key {
		case "removed":
		case "platform":
			if doc.Platform != value {
				return false
			}
		case "env":
			if doc.Env != value {
				return false
			}
		case "deprecated":
			deprecated := doc.Deprecation != nil && doc.Deprecation.Deprecated
			if deprecated != (value == "true") {
				return false
			}
		case "tag":
			if !hasTag(doc, value) {
				return false
			}
		default:
			if doc.CustomProperties[key] != value {
				return false
			}
		}
	}

	return true
}

func hasTag(doc *metadata.Metadata, tag string) bool {
	want := metadata.MakeTagURN(tag)
	for _, t := range doc.Tags {
		if t == want {
			return true
		}
	}
	return false
}

// termsFor collects the indexable terms for a metadata document
func termsFor(m *metadata.Metadata) []string {
	seen := make(map[string]struct{})
	terms := []string{}

	add := func(tokens []string) {
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			terms = append(terms, token)
		}
	}

	add(tokenize(m.Name))
	add(tokenize(m.Description))
	add(tokenize(m.Platform))

	for _, tagURN := range m.Tags {
		if name, err := metadata.TagNameFromURN(tagURN); err == nil {
			add(tokenize(name))
		}
	}

	return terms
}

// tokenize lowercases and splits a string on anything that isn't a letter or digit
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
