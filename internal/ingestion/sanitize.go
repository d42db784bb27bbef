package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bidmatch/backend/pkg/logger"
)

var (
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
	htmlHintPattern   = regexp.MustCompile(`(?i)<\s*(html|body|div|p|br|table|span|head)\b`)
)

// CleanDocumentText normalizes pasted or uploaded document text. HTML payloads
// (common with forwarded solicitation emails) are reduced to their text
// content before classification sees them.
func CleanDocumentText(raw string) string {
	text := raw

	if htmlHintPattern.MatchString(raw) {
		stripped, err := stripHTML(raw)
		if err != nil {
			logger.Warn("Failed to parse document as HTML, using raw text")
		} else {
			text = stripped
		}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func stripHTML(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	var builder strings.Builder
	doc.Find("body").Each(func(_ int, selection *goquery.Selection) {
		builder.WriteString(selection.Text())
		builder.WriteString("\n")
	})

	text := builder.String()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	return text, nil
}
