package rangetrack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/foxseedlab/mojinote/internal/document"
)

// Boundary names a cursor that separates two refinement stages of the document.
//
//	[0, Polish)        polished
//	[Polish, Format)   formatted, waiting for polish
//	[Format, liveEnd)  organized, waiting for format
type Boundary int

const (
	Polish Boundary = iota
	Format
)

const numBoundaries = 2

func (b Boundary) String() string {
	switch b {
	case Polish:
		return "polish"
	case Format:
		return "format"
	default:
		return fmt.Sprintf("boundary(%d)", int(b))
	}
}

var (
	ErrBusy              = errors.New("range is already claimed")
	ErrClaimConflict     = errors.New("claimed range was edited while the claim was open")
	ErrStaleClaim        = errors.New("claim is no longer held")
	ErrInvariantViolated = errors.New("boundary ordering invariant violated")
)

// Claim is an exclusive hold on the range owned by one boundary. The fields
// describe the range as it was when the claim was taken.
type Claim struct {
	Boundary   Boundary
	Start      int
	End        int
	Text       string
	Generation uint64
	tail       bool
}

type Snapshot struct {
	Generation uint64
	Polish     int
	Format     int
	LiveEnd    int
}

type Replacement struct {
	Boundary  Boundary
	Start     int
	Deleted   int
	Inserted  int
	Fragments []string
	Snapshot  Snapshot
}

// span is the live position of an open claim. Edits elsewhere in the
// document move it.
type span struct {
	claim      *Claim
	start      int
	end        int
	conflicted bool
}

type Option func(*Tracker)

// WithChangeHook registers fn to run after every document mutation made
// through the tracker. fn runs without the tracker lock held.
func WithChangeHook(fn func(Snapshot)) Option {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

// Tracker serializes every mutation of one document and keeps the stage
// boundaries consistent with them.
type Tracker struct {
	mu         sync.Mutex
	doc        document.Surface
	generation uint64
	bounds     [numBoundaries]int
	claims     [numBoundaries]*span
	tail       *span
	onChange   func(Snapshot)
}

func New(doc document.Surface, opts ...Option) *Tracker {
	n := doc.Len()
	t := &Tracker{
		doc:    doc,
		bounds: [numBoundaries]int{n, n},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reset starts a new generation. Both boundaries move to the current end of
// the document so existing content is never claimed, and every open claim
// becomes stale.
func (t *Tracker) Reset() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	n := t.doc.Len()
	t.bounds = [numBoundaries]int{n, n}
	t.claims = [numBoundaries]*span{}
	t.tail = nil
	return t.snapshotLocked()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) Text() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Slice(0, t.doc.Len())
}

// Check reports whether the boundary ordering currently holds.
func (t *Tracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checkOrder(t.bounds[Polish], t.bounds[Format], t.doc.Len())
}

// Claim takes the range owned by b. It returns a nil claim when the range is
// empty and ErrBusy when the range is already held.
func (t *Tracker) Claim(b Boundary) (*Claim, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tail != nil || t.claims[b] != nil {
		return nil, ErrBusy
	}

	start, end := t.rangeLocked(b)
	if start >= end {
		return nil, nil
	}
	text, err := t.doc.Slice(start, end)
	if err != nil {
		return nil, fmt.Errorf("read %s range: %w", b, err)
	}

	c := &Claim{Boundary: b, Start: start, End: end, Text: text, Generation: t.generation}
	t.claims[b] = &span{claim: c, start: start, end: end}
	return c, nil
}

// Release gives up a claim without touching the document.
func (t *Tracker) Release(c *Claim) {
	if c == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.tail {
		if t.tail != nil && t.tail.claim == c {
			t.tail = nil
		}
		return
	}
	if s := t.claims[c.Boundary]; s != nil && s.claim == c {
		t.claims[c.Boundary] = nil
	}
}

// Commit replaces the claimed range with fragments, in order, and advances
// the claim's boundary past the inserted text. The claim is released whether
// or not the commit succeeds.
func (t *Tracker) Commit(c *Claim, fragments []string) (Replacement, error) {
	t.mu.Lock()

	s, err := t.heldLocked(c)
	if err != nil {
		t.mu.Unlock()
		return Replacement{}, err
	}
	t.claims[c.Boundary] = nil

	if err := t.verifyClaimLocked(c, s); err != nil {
		t.mu.Unlock()
		return Replacement{}, err
	}

	deleted, inserted, err := t.replaceLocked(c.Boundary, s.start, s.end, c.Text, fragments)
	if err != nil {
		t.mu.Unlock()
		return Replacement{}, err
	}
	t.verifyLocked()

	rep := Replacement{
		Boundary:  c.Boundary,
		Start:     s.start,
		Deleted:   deleted,
		Inserted:  inserted,
		Fragments: fragments,
		Snapshot:  t.snapshotLocked(),
	}
	t.mu.Unlock()

	t.changed(rep.Snapshot)
	return rep, nil
}

// Append writes text at the live end. sep is written first when the document
// is not empty and does not already end with it.
func (t *Tracker) Append(text, sep string) (int, error) {
	if text == "" {
		return 0, nil
	}

	t.mu.Lock()
	at := t.doc.Len()
	if sep != "" && at > 0 {
		n := document.RuneLen(sep)
		last, err := t.doc.Slice(max(at-n, 0), at)
		if err != nil {
			t.mu.Unlock()
			return 0, fmt.Errorf("read document end: %w", err)
		}
		if last != sep {
			text = sep + text
		}
	}
	if err := t.insertLocked(at, text); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	t.verifyLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.changed(snap)
	return at, nil
}

// Insert applies an editor insertion. Offsets after the insertion point move
// right; an offset equal to it stays.
func (t *Tracker) Insert(offset int, text string) (Snapshot, error) {
	t.mu.Lock()
	if offset < 0 || offset > t.doc.Len() {
		n := t.doc.Len()
		t.mu.Unlock()
		return Snapshot{}, fmt.Errorf("insert at %d (len %d): %w", offset, n, document.ErrOutOfRange)
	}
	if err := t.insertLocked(offset, text); err != nil {
		t.mu.Unlock()
		return Snapshot{}, err
	}
	t.verifyLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.changed(snap)
	return snap, nil
}

// Delete applies an editor deletion of [start, end). Offsets inside the range
// collapse to start.
func (t *Tracker) Delete(start, end int) (int, Snapshot, error) {
	t.mu.Lock()
	if start == end {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return 0, snap, nil
	}

	removed, err := t.doc.DeleteRange(start, end)
	if err != nil {
		t.mu.Unlock()
		return 0, Snapshot{}, fmt.Errorf("delete range: %w", err)
	}

	move := func(pos int) int {
		switch {
		case pos >= end:
			return pos - removed
		case pos > start:
			return start
		default:
			return pos
		}
	}
	for i := range t.bounds {
		t.bounds[i] = move(t.bounds[i])
	}
	for _, s := range t.openLocked() {
		if start < s.end && end > s.start {
			s.conflicted = true
		}
		s.start, s.end = move(s.start), move(s.end)
	}
	t.verifyLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.changed(snap)
	return removed, snap, nil
}

// ClaimTail takes [Polish, liveEnd) for the final cleanup pass. No stage
// claim may be open.
func (t *Tracker) ClaimTail() (*Claim, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tail != nil || t.claims[Polish] != nil || t.claims[Format] != nil {
		return nil, ErrBusy
	}
	start, end := t.bounds[Polish], t.doc.Len()
	if start >= end {
		return nil, nil
	}
	text, err := t.doc.Slice(start, end)
	if err != nil {
		return nil, fmt.Errorf("read tail range: %w", err)
	}

	c := &Claim{Boundary: Polish, Start: start, End: end, Text: text, Generation: t.generation, tail: true}
	t.tail = &span{claim: c, start: start, end: end}
	return c, nil
}

// CommitTail writes the cleanup result over the tail claim as one wholesale
// document replacement. Both boundaries end up after the result.
func (t *Tracker) CommitTail(c *Claim, result string) (Replacement, error) {
	t.mu.Lock()

	if c == nil || !c.tail || t.tail == nil || t.tail.claim != c {
		t.mu.Unlock()
		return Replacement{}, ErrStaleClaim
	}
	s := t.tail
	t.tail = nil

	if err := t.verifyClaimLocked(c, s); err != nil {
		t.mu.Unlock()
		return Replacement{}, err
	}

	full, err := t.doc.Slice(0, t.doc.Len())
	if err != nil {
		t.mu.Unlock()
		return Replacement{}, fmt.Errorf("read document: %w", err)
	}
	runes := []rune(full)
	next := string(runes[:s.start]) + result + string(runes[s.end:])
	if err := t.doc.ReplaceAll(next); err != nil {
		t.mu.Unlock()
		return Replacement{}, fmt.Errorf("replace document: %w", err)
	}

	inserted := document.RuneLen(result)
	t.bounds[Polish] = s.start + inserted
	t.bounds[Format] = s.start + inserted
	t.verifyLocked()

	rep := Replacement{
		Boundary:  Polish,
		Start:     s.start,
		Deleted:   s.end - s.start,
		Inserted:  inserted,
		Fragments: []string{result},
		Snapshot:  t.snapshotLocked(),
	}
	t.mu.Unlock()

	t.changed(rep.Snapshot)
	return rep, nil
}

func (t *Tracker) heldLocked(c *Claim) (*span, error) {
	if c == nil {
		return nil, ErrStaleClaim
	}
	if c.Generation != t.generation {
		return nil, fmt.Errorf("%s claim from generation %d, current %d: %w", c.Boundary, c.Generation, t.generation, ErrStaleClaim)
	}
	s := t.claims[c.Boundary]
	if s == nil || s.claim != c {
		return nil, fmt.Errorf("%s claim was released: %w", c.Boundary, ErrStaleClaim)
	}
	return s, nil
}

func (t *Tracker) verifyClaimLocked(c *Claim, s *span) error {
	if s.conflicted {
		return ErrClaimConflict
	}
	current, err := t.doc.Slice(s.start, s.end)
	if err != nil {
		return fmt.Errorf("read claimed range: %w", err)
	}
	if current != c.Text {
		return ErrClaimConflict
	}
	return nil
}

// replaceLocked deletes [start, end) and inserts fragments in its place. When
// an insert fails the original text is put back.
func (t *Tracker) replaceLocked(b Boundary, start, end int, original string, fragments []string) (int, int, error) {
	deleted, err := t.doc.DeleteRange(start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("delete claimed range: %w", err)
	}

	cursor := start
	for i, fragment := range fragments {
		if err := t.doc.InsertAt(cursor, fragment); err != nil {
			insertErr := fmt.Errorf("insert fragment %d: %w", i, err)
			if _, rbErr := t.doc.DeleteRange(start, cursor); rbErr != nil {
				t.commitReplacement(b, start, deleted, cursor-start)
				return 0, 0, errors.Join(insertErr, fmt.Errorf("roll back fragments: %w", rbErr))
			}
			if rbErr := t.doc.InsertAt(start, original); rbErr != nil {
				t.commitReplacement(b, start, deleted, 0)
				return 0, 0, errors.Join(insertErr, fmt.Errorf("restore claimed text: %w", rbErr))
			}
			return 0, 0, insertErr
		}
		cursor += document.RuneLen(fragment)
	}

	inserted := cursor - start
	t.commitReplacement(b, start, deleted, inserted)
	return deleted, inserted, nil
}

// commitReplacement moves b to the end of the inserted text and shifts every
// other tracked offset at or after the deleted range by inserted-deleted.
func (t *Tracker) commitReplacement(b Boundary, start, deleted, inserted int) {
	end := start + deleted
	delta := inserted - deleted
	move := func(pos int) int {
		switch {
		case pos >= end:
			return pos + delta
		case pos > start:
			return start + inserted
		default:
			return pos
		}
	}

	for i := range t.bounds {
		if Boundary(i) == b {
			continue
		}
		t.bounds[i] = move(t.bounds[i])
	}
	for _, s := range t.openLocked() {
		s.start, s.end = move(s.start), move(s.end)
	}
	t.bounds[b] = start + inserted
}

func (t *Tracker) insertLocked(offset int, text string) error {
	if text == "" {
		return nil
	}
	if err := t.doc.InsertAt(offset, text); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}

	size := document.RuneLen(text)
	move := func(pos int) int {
		if pos > offset {
			return pos + size
		}
		return pos
	}
	for i := range t.bounds {
		t.bounds[i] = move(t.bounds[i])
	}
	for _, s := range t.openLocked() {
		if s.start <= offset && offset < s.end {
			s.conflicted = true
		}
		s.start, s.end = move(s.start), move(s.end)
	}
	return nil
}

func (t *Tracker) rangeLocked(b Boundary) (int, int) {
	if b == Polish {
		return t.bounds[Polish], t.bounds[Format]
	}
	return t.bounds[Format], t.doc.Len()
}

func (t *Tracker) openLocked() []*span {
	open := make([]*span, 0, numBoundaries+1)
	for _, s := range t.claims {
		if s != nil {
			open = append(open, s)
		}
	}
	if t.tail != nil {
		open = append(open, t.tail)
	}
	return open
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Generation: t.generation,
		Polish:     t.bounds[Polish],
		Format:     t.bounds[Format],
		LiveEnd:    t.doc.Len(),
	}
}

func (t *Tracker) verifyLocked() {
	if err := checkOrder(t.bounds[Polish], t.bounds[Format], t.doc.Len()); err != nil {
		panic(err)
	}
}

func (t *Tracker) changed(snap Snapshot) {
	if t.onChange != nil {
		t.onChange(snap)
	}
}

func checkOrder(polish, format, liveEnd int) error {
	if 0 <= polish && polish <= format && format <= liveEnd {
		return nil
	}
	return fmt.Errorf("%w: polish=%d format=%d live_end=%d", ErrInvariantViolated, polish, format, liveEnd)
}
