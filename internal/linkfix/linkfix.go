// Package linkfix rewrites social media links to their embed-friendly
// mirrors.
package linkfix

import (
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`(?i)^(https?://(?:www\.)?(instagram\.com|reddit\.com|tiktok\.com|twitter\.com|x\.com)/\S+)`)

var mirrors = map[string]string{
	"instagram.com": "instagramez.com",
	"reddit.com":    "redditez.com",
	"tiktok.com":    "tiktokez.com",
	"twitter.com":   "twitterez.com",
	"x.com":         "twitterez.com",
}

// Result is a rewritten link.
type Result struct {
	Original string
	Domain   string
	URL      string
}

// Markdown renders the link as "[domain](url)".
func (r Result) Markdown() string {
	return "[" + r.Domain + "](" + r.URL + ")"
}

// Rewrite reports whether content starts with a supported link and, if so,
// returns it with the host swapped for its mirror.
func Rewrite(content string) (Result, bool) {
	m := linkPattern.FindStringSubmatchIndex(content)
	if m == nil {
		return Result{}, false
	}
	original := content[m[2]:m[3]]
	host := content[m[4]:m[5]]
	domain := strings.ToLower(host)
	mirror, ok := mirrors[domain]
	if !ok {
		return Result{}, false
	}
	// swap only the matched host, leaving path and query untouched
	start, end := m[4]-m[2], m[5]-m[2]
	url := original[:start] + mirror + original[end:]
	return Result{Original: original, Domain: domain, URL: url}, true
}
