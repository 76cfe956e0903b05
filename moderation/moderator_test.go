package moderation

import (
	"dm-core/errors"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary avoids short words that would collide inside others ("he" in "The").
func TestModerator_Censor(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{name: "Simple word", input: "The badger is here", expected: "The ****** is here", words: []string{"badger"}},
		{name: "Repeated", input: "badger badger", expected: "****** ******", words: []string{"badger", "badger"}},
		{name: "Leet speak and punctuation", input: "Look at B.4.d.g.€r !", expected: "Look at ********** !", words: []string{"badger"}},
		{name: "Uppercase", input: "S-N-A-K-E", expected: "*********", words: []string{"snake"}},
		{name: "Accents kept", input: "Un été avec un badger", expected: "Un été avec un ******", words: []string{"badger"}},
		{name: "Trailing punctuation", input: "I love badger!", expected: "I love ******!", words: []string{"badger"}},
		{name: "Nothing to censor", input: "hejsan", expected: "hejsan"},
		{name: "Empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			content, words := mod.CensorWords(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
			req.Equal(tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestModerator_Noise_Only_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given entries that normalize to nothing
	mod, err := NewModerator([]string{"...", ",,,", ""}, replacementChar, log)
	req.NoError(err)

	// Then content passes through
	req.Equal("Hello ...", mod.Censor("Hello ..."))
}

func TestLoad(t *testing.T) {
	t.Run("merges and deduplicates", func(t *testing.T) {
		req := require.New(t)
		fsys := fstest.MapFS{
			"words/en.txt":    {Data: []byte("badger\r\nsnake\n\n# comment\n")},
			"words/sv.txt":    {Data: []byte("tusan\nbadger\n")},
			"words/README.md": {Data: []byte("ignored")},
		}
		dictionary, err := Load(fsys, "words")
		req.NoError(err)
		req.Equal([]string{"badger", "snake", "tusan"}, dictionary.Words)
		req.Equal([]string{"en", "sv"}, dictionary.Languages)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Load(fstest.MapFS{"words/README.md": {Data: []byte("x")}}, "words")
		require.ErrorIs(t, err, errors.ErrOnlyCensoredFiles)

		_, err = Load(fstest.MapFS{"words/en.txt": {Data: []byte("\n  \n")}}, "words")
		require.ErrorIs(t, err, errors.ErrEmptyWords)
	})

	t.Run("embedded lists", func(t *testing.T) {
		dictionary, err := LoadEmbedded()
		require.NoError(t, err)
		require.Contains(t, dictionary.Words, "darn")
	})
}
