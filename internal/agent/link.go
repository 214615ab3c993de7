package agent

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// SSHLink describes the web terminal login a node advertises.
type SSHLink struct {
	Host     string
	Port     int
	User     string
	Password string
}

// DeepLink appends the terminal login to base as query parameters, with the
// password base64-encoded and the cluster secret when set. Existing query
// parameters are kept. Without user and password base is returned as is.
func DeepLink(base string, link SSHLink, secret string) string {
	if link.User == "" || link.Password == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	q := url.Values{}
	q.Set("hostname", link.Host)
	q.Set("username", link.User)
	q.Set("password", base64.StdEncoding.EncodeToString([]byte(link.Password)))
	q.Set("port", strconv.Itoa(link.Port))
	if secret != "" {
		q.Set("secret", secret)
	}

	extra := q.Encode()
	if u.RawQuery != "" {
		u.RawQuery += "&" + extra
	} else {
		u.RawQuery = extra
	}
	return u.String()
}

var seasonPattern = regexp.MustCompile(`^s\d+`)

// Season names the hosting shard from an SSH host such as s1.serv00.com.
func Season(sshHost string) string {
	if sshHost == "" {
		return "Unknown"
	}
	if m := seasonPattern.FindString(sshHost); m != "" {
		return m
	}
	return strings.SplitN(sshHost, ".", 2)[0]
}
