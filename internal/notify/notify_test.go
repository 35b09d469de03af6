package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	n := New(LevelError, "Server Failed", "Failed to start the server.")
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Time.IsZero())
	assert.Equal(t, LevelError, n.Level)

	other := New(LevelInfo, "x", "y")
	assert.NotEqual(t, n.ID, other.ID)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	l.Notify(context.Background(), New(LevelWarning, "API Key Missing", "set ESPACE_API_KEY"))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "API Key Missing")
}

func TestBuffer_KeepsMostRecent(t *testing.T) {
	b := NewBuffer(2)
	for _, title := range []string{"one", "two", "three"} {
		b.Notify(context.Background(), New(LevelInfo, title, ""))
	}
	recent := b.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Title)
	assert.Equal(t, "three", recent[1].Title)
}

func TestMulti(t *testing.T) {
	a, b := NewBuffer(5), NewBuffer(5)
	Multi{a, nil, b}.Notify(context.Background(), New(LevelInfo, "Updates Applied", "Updated 1 file(s)"))
	assert.Len(t, a.Recent(), 1)
	assert.Len(t, b.Recent(), 1)
	assert.True(t, strings.HasPrefix(a.Recent()[0].Body, "Updated"))
}
