package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("hello world\n"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "hello world" {
		t.Fatalf("got %q, err=%v", got, err)
	}
	if out.String() != "Name?\n> " {
		t.Fatalf("unexpected prompt %q", out.String())
	}
}

func TestGetSimpleTextEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("lastline"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	if err != nil || got != "lastline" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false} {
		got, err := Confirm(bufio.NewReader(strings.NewReader(in)), "Sure?", &out)
		require.NoError(t, err)
		assert.Equal(t, want, got, "answer %q", in)
	}

	_, err := Confirm(bufio.NewReader(strings.NewReader("")), "Sure?", &out)
	assert.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"add task", []string{"add", "task"}},
		{`add task title="walk the dog"`, []string{"add", "task", "title=walk the dog"}},
		{`note='it''s'`, []string{"note=its"}},
		{`a\ b  c`, []string{"a b", "c"}},
		{`empty=""`, []string{"empty="}},
		{"   ", nil},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := splitArgs(`title="open`)
	assert.ErrorContains(t, err, "unterminated")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, float64(3), parseValue("3"))
	assert.Equal(t, 2.5, parseValue("2.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "1st", parseValue("1st"))
	assert.Equal(t, "T", parseValue("T"), "only spelled-out booleans")
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-05-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = parseTime("2026-05-04T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC), got)

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
