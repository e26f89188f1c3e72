// Package scrape extracts page metadata (Open Graph and standard meta
// tags) used to enrich saves with a title, image, and author.
package scrape

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Metadata is what could be learned about a page from its head section.
type Metadata struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
	Author      string
	PublishedAt string
}

// Extract tokenizes an HTML document and collects metadata. It never
// fails on malformed markup; whatever was found before the parser gave
// up is returned.
func Extract(r io.Reader) *Metadata {
	meta := &Metadata{}
	tokenizer := html.NewTokenizer(r)

	var inTitle bool
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return meta

		case html.TextToken:
			if inTitle && meta.Title == "" {
				meta.Title = strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = true
				continue
			}
			if tag == "body" {
				// Nothing of interest below the head.
				return meta
			}
			if tag != "meta" || !hasAttr {
				continue
			}
			meta.apply(tagAttrs(tokenizer))

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "title":
				inTitle = false
			case "head":
				return meta
			}
		}
	}
}

func (m *Metadata) apply(attrs map[string]string) {
	key := attrs["property"]
	if key == "" {
		key = attrs["name"]
	}
	content := attrs["content"]
	if key == "" || content == "" {
		return
	}

	switch key {
	case "og:title":
		m.Title = content
	case "og:description", "description":
		if m.Description == "" {
			m.Description = content
		}
	case "og:image", "twitter:image":
		if m.ImageURL == "" {
			m.ImageURL = content
		}
	case "og:site_name":
		m.SiteName = content
	case "author", "article:author":
		if m.Author == "" {
			m.Author = content
		}
	case "article:published_time":
		m.PublishedAt = content
	}
}

func tagAttrs(tokenizer *html.Tokenizer) map[string]string {
	attrs := make(map[string]string, 4)
	for {
		key, value, more := tokenizer.TagAttr()
		attrs[strings.ToLower(string(key))] = string(value)
		if !more {
			return attrs
		}
	}
}
