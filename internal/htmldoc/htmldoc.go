// Package htmldoc treats committed HTML documents as a data store.
// It splits a document around a container element and captures each of
// the container's child elements as a raw markup fragment, so that
// partial edits can splice entries without disturbing their siblings.
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrSectionNotFound indicates the container element is missing from the document.
var ErrSectionNotFound = errors.New("section not found in document")

// Link is the first anchor found inside an item.
type Link struct {
	Href  string
	Title string
	Text  string
}

// Item is one direct child element of the container section.
type Item struct {
	Raw   []byte            // exact source bytes of the element
	Tag   string            // element name, e.g. "div" or "a"
	Attrs map[string]string // attributes of the element itself
	Link  *Link             // first anchor inside the item (the item itself if it is an anchor)
	Text  string            // first non-empty text content inside the item
}

// Section is a document split around one container element.
type Section struct {
	Attrs map[string]string // attributes of the container element
	Items []Item
}

// Void elements never produce an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// ExtractSection locates the element with the given id attribute and
// returns its direct children as items. Whitespace between items is not
// preserved; each item's own markup is kept byte-for-byte.
func ExtractSection(src []byte, id string) (*Section, error) {
	z := html.NewTokenizer(bytes.NewReader(src))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return nil, fmt.Errorf("%w: id=%q", ErrSectionNotFound, id)
		}
		if tt != html.StartTagToken {
			continue
		}
		tok := z.Token()
		if attrValue(tok, "id") == id {
			section, err := collectItems(z, tok.Data)
			if err != nil {
				return nil, err
			}
			section.Attrs = attrMap(tok)
			return section, nil
		}
	}
}

// collectItems reads the container's children until its end tag.
func collectItems(z *html.Tokenizer, containerTag string) (*Section, error) {
	section := &Section{}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return nil, fmt.Errorf("unterminated <%s> container", containerTag)
		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == containerTag {
				return section, nil
			}
			// Stray end tag at container level, skip it.
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			item := Item{
				Tag:   tok.Data,
				Attrs: attrMap(tok),
			}
			if tok.Data == "a" {
				item.Link = &Link{
					Href:  attrValue(tok, "href"),
					Title: attrValue(tok, "title"),
				}
			}
			if tt == html.StartTagToken && !voidElements[tok.Data] {
				if err := captureElement(z, tok.Data, &raw, &item); err != nil {
					return nil, err
				}
			}
			item.Raw = raw
			section.Items = append(section.Items, item)
		default:
			// Text and comments between items are dropped; the renderer
			// re-emits canonical separators.
		}
	}
}

// captureElement appends raw bytes until the matching end tag, filling
// in the item's first link and text content along the way.
func captureElement(z *html.Tokenizer, tag string, raw *[]byte, item *Item) error {
	depth := 1
	var pendingLink *Link

	for depth > 0 {
		tt := z.Next()
		if tt == html.ErrorToken {
			return fmt.Errorf("unterminated <%s> element", tag)
		}
		*raw = append(*raw, z.Raw()...)

		switch tt {
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data == "a" && item.Link == nil && pendingLink == nil {
				pendingLink = &Link{
					Href:  attrValue(tok, "href"),
					Title: attrValue(tok, "title"),
				}
			}
			if tok.Data == tag && !voidElements[tok.Data] {
				depth++
			}
		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == tag {
				depth--
			}
			if tok.Data == "a" && pendingLink != nil {
				item.Link = pendingLink
				pendingLink = nil
			}
		case html.TextToken:
			text := strings.TrimSpace(string(z.Text()))
			if text != "" {
				if pendingLink != nil && pendingLink.Text == "" {
					pendingLink.Text = text
				}
				if item.Text == "" {
					item.Text = text
				}
			}
		}
	}

	if pendingLink != nil && item.Link == nil {
		item.Link = pendingLink
	}
	return nil
}

// ReplaceSection renders a document by substituting the container's
// children: everything before and after the container element is kept
// byte-for-byte, and the given fragments become its new children, each
// indented on its own line.
func ReplaceSection(src []byte, id string, fragments [][]byte) ([]byte, error) {
	start, end, indent, err := sectionBounds(src, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(src[:start])
	for _, frag := range fragments {
		buf.WriteString("\n")
		buf.WriteString(indent)
		buf.Write(frag)
	}
	buf.WriteString("\n")
	buf.WriteString(outerIndent(indent))
	buf.Write(src[end:])

	return buf.Bytes(), nil
}

// sectionBounds returns the byte offset just after the container's start
// tag, the offset of its end tag, and the indentation used for children.
func sectionBounds(src []byte, id string) (start, end int, indent string, err error) {
	z := html.NewTokenizer(bytes.NewReader(src))
	offset := 0
	found := false
	containerTag := ""
	depth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if !found {
				return 0, 0, "", fmt.Errorf("%w: id=%q", ErrSectionNotFound, id)
			}
			return 0, 0, "", fmt.Errorf("unterminated container id=%q", id)
		}
		rawLen := len(z.Raw())

		switch tt {
		case html.StartTagToken:
			tok := z.Token()
			if !found && attrValue(tok, "id") == id {
				found = true
				containerTag = tok.Data
				start = offset + rawLen
				depth = 1
			} else if found && tok.Data == containerTag && !voidElements[tok.Data] {
				depth++
			}
		case html.EndTagToken:
			if found {
				tok := z.Token()
				if tok.Data == containerTag {
					depth--
					if depth == 0 {
						end = offset
						return start, end, childIndent(src, start), nil
					}
				}
			}
		}
		offset += rawLen
	}
}

// childIndent derives the indentation for child fragments from the
// container start tag's own line, adding one level.
func childIndent(src []byte, start int) string {
	lineStart := bytes.LastIndexByte(src[:start], '\n') + 1
	indent := ""
	for _, b := range src[lineStart:start] {
		if b == ' ' || b == '\t' {
			indent += string(b)
		} else {
			break
		}
	}
	return indent + "  "
}

// outerIndent strips one indentation level for the closing tag line.
func outerIndent(indent string) string {
	if strings.HasSuffix(indent, "  ") {
		return indent[:len(indent)-2]
	}
	return indent
}

// attrValue returns an attribute's value from a parsed token.
func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// attrMap converts a token's attributes into a map.
func attrMap(tok html.Token) map[string]string {
	m := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		m[a.Key] = a.Val
	}
	return m
}
