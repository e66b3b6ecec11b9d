package capture

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	stdhtml "html"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Normalizer turns raw page bytes into a Snapshot. It is safe for
// concurrent use.
type Normalizer struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewNormalizer builds a Normalizer with the user-generated-content
// sanitizing policy.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Normalize extracts the title, sanitizes the body and converts it to
// markdown. Hash is computed over the markdown, so markup-only churn such
// as rotating nonces or attribute order does not count as a change.
func (n *Normalizer) Normalize(raw []byte, pageURL, source string, status int) *Snapshot {
	title, body := splitDocument(raw)
	clean := n.policy.SanitizeBytes(body)

	markdown := ""
	if len(bytes.TrimSpace(clean)) > 0 {
		if out, err := n.md.ConvertString(string(clean), converter.WithDomain(pageURL)); err == nil {
			markdown = strings.TrimSpace(out)
		}
	}
	if markdown == "" {
		markdown = strings.TrimSpace(PlainText(string(clean)))
	}

	return &Snapshot{
		URL:        pageURL,
		StatusCode: status,
		Title:      title,
		HTML:       string(clean),
		Markdown:   markdown,
		Hash:       Hash(markdown),
		Source:     source,
		CapturedAt: time.Now().UTC(),
	}
}

// Hash is the hex SHA-256 of s.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

var strict = bluemonday.StrictPolicy()

// PlainText strips every tag from s and decodes entities.
func PlainText(s string) string {
	return stdhtml.UnescapeString(strict.Sanitize(s))
}

// splitDocument returns the document title and the rendered <body>. When
// the input does not parse or has no body, the raw bytes are returned.
func splitDocument(raw []byte) (string, []byte) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", raw
	}
	title := ""
	if t := findElement(doc, atom.Title); t != nil {
		title = strings.Join(strings.Fields(textOf(t)), " ")
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return title, raw
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return title, raw
		}
	}
	return title, buf.Bytes()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
