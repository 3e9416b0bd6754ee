package schedule

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calroute/plugin/ai"
)

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name  string
		query string
		strip []string
		want  string
	}{
		{name: "quoted", query: `Schedule "quarterly planning" tomorrow`, want: "Quarterly Planning"},
		{name: "one on one", query: "set up a 1-on-1 with Priya next week", want: "1:1 with Priya"},
		{name: "bare one on one", query: "book a one on one for friday", want: "1:1"},
		{name: "event family", query: "book a design review friday at 2", want: "Design Review"},
		{name: "generic noun with name", query: "meeting with Alex Chen tomorrow", want: "Meeting with Alex Chen"},
		{name: "name only", query: "catch up with Maria on Monday", strip: []string{"monday"}, want: "Meeting with Maria"},
		{name: "family word with name", query: "lunch with Tom", want: "Lunch with Tom"},
		{
			name:  "remainder",
			query: "Please schedule dentist cleaning tomorrow at 9am",
			strip: []string{"tomorrow", "9am"},
			want:  "Dentist Cleaning",
		},
		{name: "calendar noun dropped", query: "add gym to my calendar tomorrow", strip: []string{"tomorrow"}, want: "Gym"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackTitle(tt.query, tt.strip))
		})
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"review of the Q3 roadmap", "Review of the Q3 Roadmap"},
		{"the end of year party", "The End of Year Party"},
		{"1:1 with john", "1:1 with John"},
		{"daily stand-up", "Daily Standup"},
		{"iOS release sync", "iOS Release Sync"},
		{"okr check-in", "OKR Check-in"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleCase(tt.in), tt.in)
	}
}

func TestCanonicalizeOneOnOne(t *testing.T) {
	for _, in := range []string{"1:1", "1 : 1", "one on one", "One-on-One", "1-on-1", "1on1"} {
		assert.Equal(t, "1:1 with Ann", CanonicalizeOneOnOne(in+" with Ann"), in)
	}
	assert.Equal(t, "meet at 11:15", CanonicalizeOneOnOne("meet at 11:15"))
	assert.Equal(t, "call at 1:10pm", CanonicalizeOneOnOne("call at 1:10pm"))
}

func TestLimitTitle(t *testing.T) {
	long := strings.Repeat("planning ", 12)
	got := LimitTitle(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxTitleLength)
	assert.False(t, strings.HasSuffix(got, " "))
	assert.Equal(t, "Short", LimitTitle("  Short "))
}

type stubLLM struct {
	reply    string
	err      error
	messages []ai.Message
}

func (s *stubLLM) Chat(_ context.Context, messages []ai.Message, _ ...ai.ChatOption) (string, error) {
	s.messages = messages
	return s.reply, s.err
}

func TestLLMTitleGenerator(t *testing.T) {
	t.Run("sanitizes reply", func(t *testing.T) {
		llm := &stubLLM{reply: "Title: \"One on one with John\"\nBecause the user asked."}
		title, err := NewLLMTitleGenerator(llm).GenerateTitle(context.Background(), "1:1 with John tomorrow")
		require.NoError(t, err)
		assert.Equal(t, "1:1 with John", title)
		require.Len(t, llm.messages, 2)
		assert.Equal(t, "system", llm.messages[0].Role)
		assert.Contains(t, llm.messages[1].Content, "1:1 with John tomorrow")
	})

	t.Run("empty reply is an error", func(t *testing.T) {
		_, err := NewLLMTitleGenerator(&stubLLM{reply: "  \"\" "}).GenerateTitle(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("transport error", func(t *testing.T) {
		_, err := NewLLMTitleGenerator(&stubLLM{err: fmt.Errorf("503")}).GenerateTitle(context.Background(), "x")
		assert.ErrorContains(t, err, "503")
	})
}
