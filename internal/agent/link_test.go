package agent

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepLink(t *testing.T) {
	link := SSHLink{Host: "s1.serv00.com", Port: 22, User: "bob", Password: "pa ss"}

	got := DeepLink("https://bob.serv00.net/ssh?lang=en", link, "sek")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/ssh", u.Path)

	q := u.Query()
	assert.Equal(t, "en", q.Get("lang"))
	assert.Equal(t, "s1.serv00.com", q.Get("hostname"))
	assert.Equal(t, "bob", q.Get("username"))
	assert.Equal(t, "cGEgc3M=", q.Get("password"))
	assert.Equal(t, "22", q.Get("port"))
	assert.Equal(t, "sek", q.Get("secret"))
}

func TestDeepLinkWithoutCredentials(t *testing.T) {
	assert.Equal(t, "http://x:8889", DeepLink("http://x:8889", SSHLink{User: "bob"}, "sek"))

	got := DeepLink("http://x:8889", SSHLink{User: "bob", Password: "p", Port: 22}, "")
	u, _ := url.Parse(got)
	assert.False(t, u.Query().Has("secret"))
}

func TestSeason(t *testing.T) {
	cases := map[string]string{
		"s12.serv00.com":    "s12",
		"s1":                "s1",
		"panel.ct8.pl":      "panel",
		"cache1.serv00.com": "cache1",
		"":                  "Unknown",
	}
	for host, want := range cases {
		assert.Equal(t, want, Season(host), host)
	}
}

func TestFallbackURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8889", fallbackURL(":8889"))
	assert.Equal(t, "http://127.0.0.1:9000", fallbackURL("0.0.0.0:9000"))
}
