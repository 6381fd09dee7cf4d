package output

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

// rawText 内容原样输出,不转义
var rawText = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
}

// verbatim 整个子树原样输出,保留空白
var verbatim = map[atom.Atom]bool{
	atom.Pre:      true,
	atom.Textarea: true,
}

// Prettify 重新缩进HTML,每层缩进一个空格,每个节点独占一行
func Prettify(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	p := &prettifier{buf: &buf}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if err := p.render(c, 0, false); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

type prettifier struct {
	buf *bytes.Buffer
}

func (p *prettifier) line(depth int, s string) {
	p.buf.WriteString(strings.Repeat(" ", depth))
	p.buf.WriteString(s)
	p.buf.WriteByte('\n')
}

func (p *prettifier) render(n *html.Node, depth int, raw bool) error {
	switch n.Type {
	case html.DoctypeNode:
		p.line(depth, "<!DOCTYPE "+n.Data+">")
	case html.CommentNode:
		p.line(depth, "<!--"+n.Data+"-->")
	case html.TextNode:
		if raw {
			if strings.TrimSpace(n.Data) != "" {
				p.line(depth, strings.TrimSpace(n.Data))
			}
			return nil
		}
		if text := strings.TrimSpace(n.Data); text != "" {
			p.line(depth, html.EscapeString(text))
		}
	case html.ElementNode:
		if verbatim[n.DataAtom] {
			var sub bytes.Buffer
			if err := html.Render(&sub, n); err != nil {
				return err
			}
			p.line(depth, sub.String())
			return nil
		}
		p.line(depth, openTag(n))
		if voidElements[n.DataAtom] {
			return nil
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := p.render(c, depth+1, rawText[n.DataAtom]); err != nil {
				return err
			}
		}
		p.line(depth, "</"+n.Data+">")
	}
	return nil
}

func openTag(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace)
			b.WriteByte(':')
		}
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}
