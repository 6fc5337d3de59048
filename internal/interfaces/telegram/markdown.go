package telegram

import (
	"bytes"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToTelegramHTML converts Markdown text to Telegram-safe HTML.
// Telegram HTML supports <b>, <i>, <s>, <code>, <pre> and <a href="">.
// Rendering through the AST guarantees well-formed tags, unlike sending
// raw Markdown parse_mode and hoping the model balanced its asterisks.
func MarkdownToTelegramHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	src := []byte(markdown)
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	w := &htmlWriter{src: src}
	w.renderChildren(&buf, doc)

	return strings.TrimRight(buf.String(), "\n")
}

// htmlWriter walks the goldmark AST and emits Telegram-compatible HTML.
type htmlWriter struct {
	src []byte
}

func (w *htmlWriter) renderChildren(buf *bytes.Buffer, node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		w.renderNode(buf, child)
	}
}

func (w *htmlWriter) renderNode(buf *bytes.Buffer, node ast.Node) {
	switch n := node.(type) {
	case *ast.Paragraph:
		w.renderChildren(buf, n)
		buf.WriteString("\n\n")

	case *ast.Heading:
		// Telegram has no heading tags, render as bold
		buf.WriteString("<b>")
		w.renderChildren(buf, n)
		buf.WriteString("</b>\n\n")

	case *ast.ThematicBreak:
		buf.WriteString("———\n\n")

	case *ast.Blockquote:
		// Telegram has no blockquote, prefix each line
		var inner bytes.Buffer
		w.renderChildren(&inner, n)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			buf.WriteString("▎")
			buf.WriteString(line)
			buf.WriteString("\n")
		}
		buf.WriteString("\n")

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(w.src)); lang != "" {
			buf.WriteString("<pre><code class=\"language-")
			buf.WriteString(html.EscapeString(lang))
			buf.WriteString("\">")
		} else {
			buf.WriteString("<pre><code>")
		}
		w.writeRawLines(buf, n)
		buf.WriteString("</code></pre>\n\n")

	case *ast.CodeBlock:
		buf.WriteString("<pre><code>")
		w.writeRawLines(buf, n)
		buf.WriteString("</code></pre>\n\n")

	case *ast.List:
		w.renderList(buf, n)

	case *ast.ListItem:
		w.renderChildren(buf, n)

	case *ast.Text:
		buf.WriteString(html.EscapeString(string(n.Segment.Value(w.src))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteString("\n")
		}

	case *ast.String:
		buf.WriteString(html.EscapeString(string(n.Value)))

	case *ast.CodeSpan:
		buf.WriteString("<code>")
		w.renderCodeSpanText(buf, n)
		buf.WriteString("</code>")

	case *ast.Emphasis:
		tag := "i"
		if n.Level == 2 {
			tag = "b"
		}
		buf.WriteString("<" + tag + ">")
		w.renderChildren(buf, n)
		buf.WriteString("</" + tag + ">")

	case *east.Strikethrough:
		buf.WriteString("<s>")
		w.renderChildren(buf, n)
		buf.WriteString("</s>")

	case *ast.Link:
		buf.WriteString("<a href=\"")
		buf.WriteString(html.EscapeString(string(n.Destination)))
		buf.WriteString("\">")
		w.renderChildren(buf, n)
		buf.WriteString("</a>")

	case *ast.AutoLink:
		url := string(n.URL(w.src))
		buf.WriteString("<a href=\"")
		buf.WriteString(html.EscapeString(url))
		buf.WriteString("\">")
		buf.WriteString(html.EscapeString(url))
		buf.WriteString("</a>")

	case *ast.Image:
		// Telegram does not support inline images in text messages
		buf.WriteString("[изображение: ")
		buf.WriteString(html.EscapeString(string(n.Destination)))
		buf.WriteString("]")

	case *ast.RawHTML:
		segs := n.Segments
		for i := 0; i < segs.Len(); i++ {
			seg := segs.At(i)
			buf.Write(seg.Value(w.src))
		}

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(w.src))
		}
		buf.WriteString("\n")

	default:
		w.renderChildren(buf, node)
	}
}

func (w *htmlWriter) writeRawLines(buf *bytes.Buffer, node ast.Node) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.WriteString(html.EscapeString(string(seg.Value(w.src))))
	}
}

func (w *htmlWriter) renderCodeSpanText(buf *bytes.Buffer, node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.WriteString(html.EscapeString(string(t.Segment.Value(w.src))))
		} else {
			w.renderCodeSpanText(buf, child)
		}
	}
}

func (w *htmlWriter) renderList(buf *bytes.Buffer, list *ast.List) {
	idx := list.Start
	for child := list.FirstChild(); child != nil; child = child.NextSibling() {
		if list.IsOrdered() {
			buf.WriteString(strconv.Itoa(idx))
			buf.WriteString(". ")
			idx++
		} else {
			buf.WriteString("• ")
		}
		var item bytes.Buffer
		w.renderChildren(&item, child)
		for i, line := range strings.Split(strings.TrimRight(item.String(), "\n"), "\n") {
			if i > 0 {
				buf.WriteString("\n  ")
			}
			buf.WriteString(line)
		}
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

var reStripMarkdown = regexp.MustCompile("(?s)```[^`]*```|`[^`]+`|\\*\\*|__|\\*|_|~~|#{1,6} |\\[([^]]+)\\]\\([^)]+\\)|!\\[[^]]*\\]\\([^)]+\\)")

// StripMarkdown removes Markdown formatting, leaving plain text. Used as
// the last resort when Telegram rejects the HTML rendition of a reply.
func StripMarkdown(md string) string {
	return reStripMarkdown.ReplaceAllStringFunc(md, func(match string) string {
		switch {
		case strings.HasPrefix(match, "!["):
			return ""
		case strings.HasPrefix(match, "["):
			if idx := strings.Index(match, "]("); idx > 0 {
				return match[1:idx]
			}
			return match
		case strings.HasPrefix(match, "```"):
			inner := strings.TrimSuffix(strings.TrimPrefix(match, "```"), "```")
			if idx := strings.Index(inner, "\n"); idx >= 0 {
				inner = inner[idx+1:]
			}
			return inner
		case strings.HasPrefix(match, "`"):
			return strings.Trim(match, "`")
		case strings.HasPrefix(match, "#"):
			return ""
		default:
			return ""
		}
	})
}
