package translate

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var scriptsAndStyles = regexp.MustCompile(`(?is)<script[^>]*?>.*?</script>|<style[^>]*?>.*?</style>`)

func contentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^[\w-]+$`)).OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(true)
	p.RequireNoFollowOnLinks(false)
	p.AllowElements(
		"a", "b", "br", "div", "em",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"hr", "i", "li", "p", "span", "strong", "ul", "ol",
	)
	return p
}

// Sanitizer cleans upstream HTML down to the tags the content store accepts.
type Sanitizer struct {
	content *bluemonday.Policy
	text    *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		content: contentPolicy(),
		text:    bluemonday.StrictPolicy(),
	}
}

// Content strips script and style blocks and then applies the allow-list.
func (s *Sanitizer) Content(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.content.Sanitize(scriptsAndStyles.ReplaceAllString(raw, "")))
}

// Text strips every tag and returns plain text.
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(raw)))
}
