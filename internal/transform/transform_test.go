package transform

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestSplitFragments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain text is one fragment",
			text: "hello world",
			want: []string{"hello world"},
		},
		{
			name: "blocks",
			text: "<h2>Title</h2><p>One.</p><ul><li>a</li></ul>",
			want: []string{"<h2>Title</h2>", "<p>One.</p>", "<ul><li>a</li></ul>"},
		},
		{
			name: "text between blocks joins the next block",
			text: "intro <p class=\"x\">Body</p> outro",
			want: []string{"intro <p class=\"x\">Body</p>", " outro"},
		},
		{
			name: "trailing whitespace joins the last block",
			text: "<P>Upper</P>\n",
			want: []string{"<P>Upper</P>\n"},
		},
		{
			name: "unclosed block stays whole",
			text: "<p>open <pre>x</pre>",
			want: []string{"<p>open <pre>x</pre>"},
		},
		{
			name: "blank",
			text: "  \n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitFragments(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitFragments(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if tt.want != nil && strings.Join(got, "") != tt.text {
				t.Fatalf("fragments do not rebuild input: %q", strings.Join(got, ""))
			}
		})
	}
}

func TestTidy(t *testing.T) {
	t.Parallel()

	got := Tidy("<p>a</p>\n\n  <p>b   c</p>\n\n\nend ")
	want := "<p>a</p><p>b c</p>\nend"
	if got != want {
		t.Fatalf("Tidy() = %q, want %q", got, want)
	}
}

func TestWithMinLengthSkipsShortInput(t *testing.T) {
	t.Parallel()

	calls := 0
	upper := Func(func(_ context.Context, req Request) (Result, error) {
		calls++
		return Result{Text: strings.ToUpper(req.Text)}, nil
	})
	tr := WithMinLength(upper, 10)

	res, err := tr.Transform(context.Background(), Request{Text: "  short  "})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if res.Text != "  short  " || calls != 0 {
		t.Fatalf("short input: text=%q calls=%d", res.Text, calls)
	}

	res, err = tr.Transform(context.Background(), Request{Text: "long enough input"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if res.Text != "LONG ENOUGH INPUT" || calls != 1 {
		t.Fatalf("long input: text=%q calls=%d", res.Text, calls)
	}
}
