package subtitle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("01:02:03,456")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second+456*time.Millisecond, got)

	got, err = ParseTimestamp("00:00:01.500")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, got)

	for _, bad := range []string{"", "00:01,000", "aa:00:00,000", "00:00:00"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseToleratesBOMAndCRLF(t *testing.T) {
	input := "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\n大家好\r\n欢迎收看\r\n\r\n2\r\n00:00:02,500 --> 00:00:04,000 X1:10\r\n今天"

	cues, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, Cue{Index: 1, Start: time.Second, End: 2500 * time.Millisecond, Text: "大家好\n欢迎收看"}, cues[0])
	assert.Equal(t, Cue{Index: 2, Start: 2500 * time.Millisecond, End: 4 * time.Second, Text: "今天"}, cues[1])
}

func TestParseRejectsBrokenBlocks(t *testing.T) {
	for name, input := range map[string]string{
		"missing timing": "1\n\n2\n00:00:01,000 --> 00:00:02,000\nx\n",
		"bad timing":     "1\n00:00:01 -> 00:00:02\nx\n",
		"not a number":   "hello\n00:00:01,000 --> 00:00:02,000\nx\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cues, err := Parse(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, cues)
}

func TestFormatRoundTrip(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 1200 * time.Millisecond, Text: "第一行\n第二行"},
		{Index: 2, Start: 61 * time.Second, End: 62 * time.Second, Text: "end"},
	}
	out := Format(cues)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,200\n第一行\n第二行\n\n2\n00:01:01,000 --> 00:01:02,000\nend\n\n", out)

	back, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, cues, back)
}
