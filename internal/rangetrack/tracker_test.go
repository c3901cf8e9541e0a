package rangetrack

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/foxseedlab/mojinote/internal/document"
)

func newTracker(t *testing.T, initial string) (*Tracker, *document.Buffer) {
	t.Helper()
	doc := document.NewBuffer(initial)
	return New(doc), doc
}

func mustClaim(t *testing.T, tr *Tracker, b Boundary) *Claim {
	t.Helper()
	c, err := tr.Claim(b)
	if err != nil {
		t.Fatalf("Claim(%s) error = %v", b, err)
	}
	if c == nil {
		t.Fatalf("Claim(%s) returned no claim", b)
	}
	return c
}

func assertSnapshot(t *testing.T, tr *Tracker, polish, format, liveEnd int) {
	t.Helper()
	s := tr.Snapshot()
	if s.Polish != polish || s.Format != format || s.LiveEnd != liveEnd {
		t.Fatalf("snapshot = {polish:%d format:%d live_end:%d}, want {%d %d %d}",
			s.Polish, s.Format, s.LiveEnd, polish, format, liveEnd)
	}
}

func TestNewStartsBoundariesAtDocumentEnd(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "existing note")
	assertSnapshot(t, tr, 13, 13, 13)

	c, err := tr.Claim(Format)
	if err != nil || c != nil {
		t.Fatalf("Claim(Format) = %v, %v; want no claim", c, err)
	}
}

func TestHelloWorldThroughAllStages(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "")
	tr.Reset()

	if _, err := tr.Append("hello world", "\n"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	assertSnapshot(t, tr, 0, 0, 11)

	format := mustClaim(t, tr, Format)
	if format.Text != "hello world" || format.Start != 0 || format.End != 11 {
		t.Fatalf("format claim = %+v", format)
	}
	if _, err := tr.Commit(format, []string{strings.ToUpper(format.Text)}); err != nil {
		t.Fatalf("Commit(format) error = %v", err)
	}
	if got := doc.String(); got != "HELLO WORLD" {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 0, 11, 11)

	polish := mustClaim(t, tr, Polish)
	if polish.Text != "HELLO WORLD" {
		t.Fatalf("polish claim text = %q", polish.Text)
	}
	if _, err := tr.Commit(polish, []string{"Hello World."}); err != nil {
		t.Fatalf("Commit(polish) error = %v", err)
	}
	if got := doc.String(); got != "Hello World." {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 12, 12, 12)
}

func TestClaimIsExclusivePerBoundary(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "")
	if _, err := tr.Append("some organized text", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	first := mustClaim(t, tr, Format)
	if _, err := tr.Claim(Format); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Claim(Format) error = %v, want ErrBusy", err)
	}

	tr.Release(first)
	again := mustClaim(t, tr, Format)
	if again.Text != first.Text || again.Start != first.Start || again.End != first.End {
		t.Fatalf("re-claim = %+v, want same range as %+v", again, first)
	}
}

func TestReclaimAfterCommitIsEmpty(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "")
	if _, err := tr.Append("organized", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	c := mustClaim(t, tr, Format)
	if _, err := tr.Commit(c, []string{"<p>", "organized", "</p>"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	again, err := tr.Claim(Format)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if again != nil {
		t.Fatalf("Claim() after commit = %+v, want empty", again)
	}
}

func TestAppendDuringFormatClaimIsNotPartOfIt(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "")
	if _, err := tr.Append("first", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	c := mustClaim(t, tr, Format)

	if _, err := tr.Append("second", "\n"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := tr.Commit(c, []string{"FIRST"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := doc.String(); got != "FIRST\nsecond" {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 0, 5, 12)

	next := mustClaim(t, tr, Format)
	if next.Text != "\nsecond" {
		t.Fatalf("next claim text = %q", next.Text)
	}
}

func TestPolishCommitShiftsOpenFormatClaim(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "")
	if _, err := tr.Append("aaaa", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := tr.Commit(mustClaim(t, tr, Format), []string{"AAAA"}); err != nil {
		t.Fatalf("Commit(format) error = %v", err)
	}
	if _, err := tr.Append("bbbb", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	polish := mustClaim(t, tr, Polish)
	format := mustClaim(t, tr, Format)

	if _, err := tr.Commit(polish, []string{"A."}); err != nil {
		t.Fatalf("Commit(polish) error = %v", err)
	}
	assertSnapshot(t, tr, 2, 2, 6)

	if _, err := tr.Commit(format, []string{"BBBB"}); err != nil {
		t.Fatalf("Commit(format) error = %v", err)
	}
	if got := doc.String(); got != "A.BBBB" {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 2, 6, 6)
}

func TestCommitReplacementShiftsOnlyOffsetsAtOrAfterRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		boundary   Boundary
		bounds     [numBoundaries]int
		start      int
		deleted    int
		inserted   int
		wantPolish int
		wantFormat int
	}{
		{
			name:       "format grows",
			boundary:   Format,
			bounds:     [numBoundaries]int{2, 5},
			start:      5,
			deleted:    4,
			inserted:   10,
			wantPolish: 2,
			wantFormat: 15,
		},
		{
			name:       "polish shrinks and format follows",
			boundary:   Polish,
			bounds:     [numBoundaries]int{0, 11},
			start:      0,
			deleted:    11,
			inserted:   6,
			wantPolish: 6,
			wantFormat: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTracker(t, "")
			tr.bounds = tt.bounds
			tr.commitReplacement(tt.boundary, tt.start, tt.deleted, tt.inserted)
			if tr.bounds[Polish] != tt.wantPolish || tr.bounds[Format] != tt.wantFormat {
				t.Fatalf("bounds = %v, want polish=%d format=%d", tr.bounds, tt.wantPolish, tt.wantFormat)
			}
		})
	}
}

func TestEditorInsertOutsideClaimShiftsIt(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "title\n")
	tr.Reset()
	if _, err := tr.Append("raw text", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	c := mustClaim(t, tr, Format)

	if _, err := tr.Insert(0, "# "); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	assertSnapshot(t, tr, 8, 8, 16)

	if _, err := tr.Commit(c, []string{"Raw text."}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := doc.String(); got != "# title\nRaw text." {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 8, 17, 17)
}

func TestEditorInsertAtBoundaryKeepsBoundary(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "")
	if _, err := tr.Append("formatted", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := tr.Commit(mustClaim(t, tr, Format), []string{"formatted"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if _, err := tr.Insert(9, " by hand"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	assertSnapshot(t, tr, 0, 9, 17)
}

func TestEditorEditInsideClaimRefusesCommit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(*Tracker) error
	}{
		{
			name: "insert",
			edit: func(tr *Tracker) error {
				_, err := tr.Insert(3, "XX")
				return err
			},
		},
		{
			name: "delete",
			edit: func(tr *Tracker) error {
				_, _, err := tr.Delete(2, 4)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, doc := newTracker(t, "")
			if _, err := tr.Append("abcdefgh", ""); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			c := mustClaim(t, tr, Format)

			if err := tt.edit(tr); err != nil {
				t.Fatalf("edit error = %v", err)
			}
			edited := doc.String()

			if _, err := tr.Commit(c, []string{"REPLACED"}); !errors.Is(err, ErrClaimConflict) {
				t.Fatalf("Commit() error = %v, want ErrClaimConflict", err)
			}
			if got := doc.String(); got != edited {
				t.Fatalf("document = %q, want %q", got, edited)
			}

			again := mustClaim(t, tr, Format)
			if again.Text != edited {
				t.Fatalf("re-claim text = %q, want %q", again.Text, edited)
			}
		})
	}
}

func TestEditorDeleteAcrossBoundaryClamps(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "")
	if _, err := tr.Append("0123456789", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := tr.Commit(mustClaim(t, tr, Format), []string{"0123456789"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := tr.Append("abc", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	assertSnapshot(t, tr, 0, 10, 13)

	removed, _, err := tr.Delete(8, 12)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed = %d, want 4", removed)
	}
	if got := doc.String(); got != "01234567c" {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 0, 8, 9)
}

func TestStaleClaimAfterReset(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "")
	tr.Reset()
	if _, err := tr.Append("old session", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	c := mustClaim(t, tr, Format)

	tr.Reset()
	if _, err := tr.Commit(c, []string{"OLD SESSION"}); !errors.Is(err, ErrStaleClaim) {
		t.Fatalf("Commit() error = %v, want ErrStaleClaim", err)
	}
	if got := doc.String(); got != "old session" {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 11, 11, 11)
}

func TestCommitAfterReleaseIsStale(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "")
	if _, err := tr.Append("text", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	c := mustClaim(t, tr, Format)
	tr.Release(c)

	if _, err := tr.Commit(c, []string{"TEXT"}); !errors.Is(err, ErrStaleClaim) {
		t.Fatalf("Commit() error = %v, want ErrStaleClaim", err)
	}
}

func TestTailClaimReplacesWholeDocument(t *testing.T) {
	t.Parallel()

	tr, doc := newTracker(t, "header\n")
	tr.Reset()
	if _, err := tr.Append("a b c", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tail, err := tr.ClaimTail()
	if err != nil {
		t.Fatalf("ClaimTail() error = %v", err)
	}
	if tail.Text != "a b c" {
		t.Fatalf("tail text = %q", tail.Text)
	}
	if _, err := tr.Claim(Format); !errors.Is(err, ErrBusy) {
		t.Fatalf("Claim(Format) during tail claim error = %v, want ErrBusy", err)
	}

	if _, err := tr.CommitTail(tail, "A, B and C."); err != nil {
		t.Fatalf("CommitTail() error = %v", err)
	}
	if got := doc.String(); got != "header\nA, B and C." {
		t.Fatalf("document = %q", got)
	}
	assertSnapshot(t, tr, 18, 18, 18)
}

func TestChangeHookSeesMutations(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	tr := New(document.NewBuffer(""), WithChangeHook(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	}))

	if _, err := tr.Append("one", ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := tr.Insert(0, ">"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := tr.Claim(Format); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 2 {
		t.Fatalf("hook calls = %d, want 2", len(snaps))
	}
	if snaps[1].LiveEnd != 4 {
		t.Fatalf("last snapshot live end = %d, want 4", snaps[1].LiveEnd)
	}
}

func TestCheckOrder(t *testing.T) {
	t.Parallel()

	if err := checkOrder(1, 2, 3); err != nil {
		t.Fatalf("checkOrder(1,2,3) error = %v", err)
	}
	if err := checkOrder(3, 2, 5); !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("checkOrder(3,2,5) error = %v, want ErrInvariantViolated", err)
	}
	if err := checkOrder(0, 6, 5); !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("checkOrder(0,6,5) error = %v, want ErrInvariantViolated", err)
	}
}

func TestConcurrentAppendsAndPassesKeepOrdering(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(t, "")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			if _, err := tr.Append("word", " "); err != nil {
				t.Errorf("Append() error = %v", err)
				return
			}
		}
	}()

	for _, b := range []Boundary{Format, Polish} {
		wg.Add(1)
		go func(b Boundary) {
			defer wg.Done()
			for range 200 {
				c, err := tr.Claim(b)
				if err != nil || c == nil {
					continue
				}
				if _, err := tr.Commit(c, []string{strings.ToUpper(c.Text)}); err != nil {
					t.Errorf("Commit(%s) error = %v", b, err)
					return
				}
			}
		}(b)
	}
	wg.Wait()

	if err := tr.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	text, err := tr.Text()
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got := strings.Count(strings.ToLower(text), "word"); got != 200 {
		t.Fatalf("word count = %d, want 200", got)
	}
}
