package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotices_ExpireAndCap(t *testing.T) {
	now := time.Unix(0, 0)
	q := NewNotices(time.Second, 2)
	q.now = func() time.Time { return now }

	q.Notify(Notice{Title: "a"})
	now = now.Add(500 * time.Millisecond)
	q.Notify(Notice{Title: "b"})
	q.Notify(Notice{Title: "c"})
	require.Equal(t, []Notice{{Title: "b"}, {Title: "c"}}, q.Active())

	require.False(t, q.Prune())
	now = now.Add(time.Second)
	require.True(t, q.Prune())
	require.Empty(t, q.Active())
}

func TestNotifierFunc(t *testing.T) {
	var got Notice
	var n Notifier = NotifierFunc(func(x Notice) { got = x })
	n.Notify(Notice{Level: LevelSuccess, Title: "ok"})
	require.Equal(t, "ok", got.Title)
	require.Equal(t, "success", got.Level.String())
}

func TestInitialTheme(t *testing.T) {
	require.Equal(t, ThemeLight, InitialTheme("light", true))
	require.Equal(t, ThemeDark, InitialTheme(" Dark ", false))
	require.Equal(t, ThemeDark, InitialTheme("auto", true))
	require.Equal(t, ThemeLight, InitialTheme("", false))
	require.Equal(t, ThemeLight, ThemeDark.Toggle())
	require.Equal(t, ThemeDark, ThemeLight.Toggle())
}
