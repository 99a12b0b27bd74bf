package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "salebot/internal/transport"
)

func TestSplitShortText(t *testing.T) {
	assert.Equal(t, []string{"hi"}, splitTelegramText("hi", 10, ""))
}

func TestSplitPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitRespectsRuneLimit(t *testing.T) {
	s := strings.Repeat("é", 25)
	got := splitTelegramText(s, 10, "")
	require.Len(t, got, 3)
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, s, strings.Join(got, ""))
}

func TestSplitAvoidsCuttingHTMLTags(t *testing.T) {
	s := "hello <b>world</b>"
	got := splitTelegramText(s, 8, "HTML")
	assert.Equal(t, "hello ", got[0])
	assert.True(t, strings.HasPrefix(got[1], "<b>"))
}

func TestToUpdate(t *testing.T) {
	up, ok := toUpdate(&tele.Message{
		ID:       7,
		Text:     "/start",
		Chat:     &tele.Chat{ID: -100},
		Sender:   &tele.User{ID: 42, Username: "ann"},
		ThreadID: 3,
	})
	require.True(t, ok)
	assert.Equal(t, kit.UpdateMessage, up.Kind)
	assert.Equal(t, &kit.Message{ID: 7, ChatID: -100, ThreadID: 3, FromID: 42, FromUsername: "ann", Text: "/start"}, up.Message)

	_, ok = toUpdate(nil)
	assert.False(t, ok)
	_, ok = toUpdate(&tele.Message{Text: "x"})
	assert.False(t, ok)
}
