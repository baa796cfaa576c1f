// Package docstore owns parsed JSON documents, per-document field
// lengths, and a term to positional posting-list inverted index. It
// implements the query primitives (term/phrase/range/prefix/wildcard/
// fuzzy) and aggregations the query dispatcher composes.
package docstore

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/briarshard/shardsearch/internal/searchengine/tokenizer"
)

// ErrMalformedDocument is returned by Add when the supplied text is not
// valid JSON. State is left untouched on this error.
var ErrMalformedDocument = errors.New("docstore: malformed document")

// Posting is one occurrence of a term in a document's field.
type Posting struct {
	DocID   string
	Field   string
	Ordinal int
}

// termEntry is the inverted index's value per term: every occurrence,
// plus a running per-document occurrence count from which document
// frequency is read in O(1). Delete filters the document's positions out
// of the postings slice.
type termEntry struct {
	postings []Posting
	docCount map[string]int
}

// DocumentFrequency is the number of distinct documents containing this
// term — not len(postings), which would double count repeated terms.
func (t *termEntry) DocumentFrequency() int { return len(t.docCount) }

type storedDoc struct {
	JSON      any
	Score     float64
	IndexTime int64
	// postings is this document's own contribution to the inverted
	// index, term -> positions, kept so Delete can surgically remove
	// exactly the positions this document added.
	postings map[string][]Posting
	// fieldLengths is the token count contributed per field at ingest.
	fieldLengths map[string]int
}

// Store is the document store of one shard's partition: one corpus, two
// independently lockable indexes. Callers acquire docMu before idxMu
// whenever both are needed; never the reverse.
type Store struct {
	docMu sync.RWMutex
	idxMu sync.RWMutex

	documents map[string]*storedDoc
	index     map[string]*termEntry

	totalDocumentLength int64
	docCount            int64
}

// New returns an empty document store.
func New() *Store {
	return &Store{
		documents: make(map[string]*storedDoc),
		index:     make(map[string]*termEntry),
	}
}

// Add parses jsonText and (re)indexes it under docID. If parsing fails,
// the store is left entirely untouched. If docID already exists, its
// old positions and field-length contributions are removed before the
// new payload is indexed, so re-add behaves as an atomic replace.
func (s *Store) Add(docID, jsonText string) error {
	var parsed any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return ErrMalformedDocument
	}
	return s.AddParsed(docID, parsed)
}

// AddParsed indexes an already-parsed JSON value under docID.
func (s *Store) AddParsed(docID string, parsed any) error {
	fieldLengths := make(map[string]int)
	postings := make(map[string][]Posting)
	walkDocument(parsed, docID, fieldLengths, postings)

	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	if old, exists := s.documents[docID]; exists {
		s.removeFromIndexLocked(docID, old)
	}

	doc := &storedDoc{
		JSON:         parsed,
		IndexTime:    time.Now().UnixMilli(),
		postings:     postings,
		fieldLengths: fieldLengths,
	}
	s.documents[docID] = doc
	s.docCount++

	for term, positions := range postings {
		entry := s.index[term]
		if entry == nil {
			entry = &termEntry{docCount: make(map[string]int)}
			s.index[term] = entry
		}
		entry.postings = append(entry.postings, positions...)
		entry.docCount[docID] += len(positions)
	}
	for _, length := range fieldLengths {
		s.totalDocumentLength += int64(length)
	}
	return nil
}

// walkDocument walks a parsed JSON tree and records every string
// token's position under its dotted field path. Object values recurse
// with an extended prefix; array elements that are strings are indexed
// under the same field path as a continuing token stream (no
// per-element ordinal reset); numbers and booleans are never added to
// the inverted index, only to documents for range queries/aggregations.
func walkDocument(value any, docID string, fieldLengths map[string]int, postings map[string][]Posting) {
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}
	for key, v := range obj {
		indexValue(v, key, docID, fieldLengths, postings)
	}
}

func indexValue(value any, path, docID string, fieldLengths map[string]int, postings map[string][]Posting) {
	switch v := value.(type) {
	case string:
		indexString(v, path, docID, fieldLengths, postings)
	case map[string]any:
		for key, child := range v {
			indexValue(child, path+"."+key, docID, fieldLengths, postings)
		}
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				indexString(s, path, docID, fieldLengths, postings)
			}
		}
	default:
		// numbers, bools, null: not tokenized, but remain reachable via
		// docfield for range queries and aggregations.
	}
}

func indexString(text, path, docID string, fieldLengths map[string]int, postings map[string][]Posting) {
	base := fieldLengths[path]
	tokens := tokenizer.Tokenize(text)
	for _, tok := range tokens {
		postings[tok.Term] = append(postings[tok.Term], Posting{
			DocID:   docID,
			Field:   path,
			Ordinal: base + tok.Position,
		})
	}
	fieldLengths[path] = base + len(tokens)
}

// removeFromIndexLocked drops doc's positions from every term it
// contributed to, deleting any term entry that becomes empty. Caller
// must hold both locks exclusively.
func (s *Store) removeFromIndexLocked(docID string, doc *storedDoc) {
	for term := range doc.postings {
		entry := s.index[term]
		if entry == nil {
			continue
		}
		filtered := entry.postings[:0]
		for _, p := range entry.postings {
			if p.DocID != docID {
				filtered = append(filtered, p)
			}
		}
		entry.postings = filtered
		delete(entry.docCount, docID)
		if len(entry.postings) == 0 {
			delete(s.index, term)
		}
	}
	for _, length := range doc.fieldLengths {
		s.totalDocumentLength -= int64(length)
	}
	s.docCount--
}

// Delete removes docID from both indexes, returning whether it existed.
func (s *Store) Delete(docID string) bool {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	doc, exists := s.documents[docID]
	if !exists {
		return false
	}
	s.removeFromIndexLocked(docID, doc)
	delete(s.documents, docID)
	return true
}

// Clear removes every document and posting, resetting the store.
func (s *Store) Clear() {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	s.documents = make(map[string]*storedDoc)
	s.index = make(map[string]*termEntry)
	s.totalDocumentLength = 0
	s.docCount = 0
}

// Get returns the parsed JSON for docID.
func (s *Store) Get(docID string) (any, bool) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, false
	}
	return doc.JSON, true
}

// DocCount is the number of documents currently stored.
func (s *Store) DocCount() int64 {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	return s.docCount
}

// AverageDocumentLength is total_document_length / N, derived on demand
// rather than maintained incrementally, since it is only ever needed at
// query time and N changes on every add/delete.
func (s *Store) AverageDocumentLength() float64 {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	if s.docCount == 0 {
		return 0
	}
	return float64(s.totalDocumentLength) / float64(s.docCount)
}

// DocLength returns the token count for field (or the sum across all
// fields when field is empty), floored at 1 to avoid a division by zero
// in BM25's length normalization.
func (s *Store) DocLength(docID, field string) int {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	doc, ok := s.documents[docID]
	if !ok {
		return 1
	}
	if field == "" {
		total := 0
		for _, l := range doc.fieldLengths {
			total += l
		}
		if total == 0 {
			return 1
		}
		return total
	}
	if l, ok := doc.fieldLengths[field]; ok && l > 0 {
		return l
	}
	return 1
}

// AllDocIDs returns every stored document id, used by the match_all
// clause to build its candidate set.
func (s *Store) AllDocIDs() []string {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	return ids
}

// ForEachDoc calls fn with every stored document's id and parsed JSON.
func (s *Store) ForEachDoc(fn func(docID string, doc any)) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	for id, d := range s.documents {
		fn(id, d.JSON)
	}
}

// Terms returns every distinct term currently in the inverted index.
func (s *Store) Terms() []string {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	terms := make([]string, 0, len(s.index))
	for t := range s.index {
		terms = append(terms, t)
	}
	return terms
}

// DocumentFrequency returns the term's document frequency, or 0 if the
// term is absent from the index.
func (s *Store) DocumentFrequency(term string) int {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	entry := s.index[term]
	if entry == nil {
		return 0
	}
	return entry.DocumentFrequency()
}

// EstimatedSizeBytes gives a shard stats call something to report: a
// rough byte count for documents and postings, not meant to be exact.
func (s *Store) EstimatedSizeBytes() int64 {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	var size int64
	for id, d := range s.documents {
		size += int64(len(id)) + 64
		for f := range d.fieldLengths {
			size += int64(len(f)) + 8
		}
	}
	for term, entry := range s.index {
		size += int64(len(term))
		size += int64(len(entry.postings)) * 32
	}
	return size
}

// TotalTermPositions sums len(postings) across every term, one of the
// counters a shard's Stats call surfaces.
func (s *Store) TotalTermPositions() int64 {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	var total int64
	for _, entry := range s.index {
		total += int64(len(entry.postings))
	}
	return total
}

// UniqueTermCount is the number of distinct terms in the index.
func (s *Store) UniqueTermCount() int64 {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	return int64(len(s.index))
}
