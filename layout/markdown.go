package layout

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// RenderMarkdown renders a markdown string using goldmark. Thematic breaks
// start a new page; GFM tables become bordered tables.
func (e *Engine) RenderMarkdown(source string) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))
	if doc == nil {
		return fmt.Errorf("markdown: parse failed")
	}
	e.walkMarkdown(doc, src, 0)
	return nil
}

func (e *Engine) walkMarkdown(node ast.Node, source []byte, depth int) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			e.Heading(inlineText(n, source), n.Level)
		case *ast.Paragraph, *ast.TextBlock:
			e.Paragraph(inlineText(n, source))
		case *ast.List:
			e.renderMarkdownList(n, source, depth)
		case *ast.ThematicBreak:
			e.PageBreak()
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			e.renderCodeBlock(n, source)
		case *ast.Blockquote:
			e.walkMarkdown(n, source, depth+1)
		case *east.Table:
			e.Table(tableRows(n, source), PlainTable())
		}
	}
}

func (e *Engine) renderMarkdownList(list *ast.List, source []byte, depth int) {
	index := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d.", index)
			index++
		}
		first := true
		for block := item.FirstChild(); block != nil; block = block.NextSibling() {
			if sub, ok := block.(*ast.List); ok {
				e.renderMarkdownList(sub, source, depth+1)
				continue
			}
			if first {
				e.ListItem(inlineText(block, source), marker, depth)
				first = false
				continue
			}
			e.ListItem(inlineText(block, source), "", depth)
		}
	}
}

func (e *Engine) renderCodeBlock(n ast.Node, source []byte) {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	st := e.BodyStyle()
	st.Indent = 15
	e.Write(strings.TrimRight(sb.String(), "\n"), st)
}

// inlineText flattens the inline children of a block into plain text.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(node ast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				sb.Write(util.UnescapePunctuations(t.Segment.Value(source)))
				if t.HardLineBreak() {
					sb.WriteByte('\n')
				} else if t.SoftLineBreak() {
					sb.WriteByte(' ')
				}
			case *ast.String:
				sb.Write(t.Value)
			case *ast.CodeSpan:
				walk(t)
			case *ast.AutoLink:
				sb.Write(t.Label(source))
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

func tableRows(t *east.Table, source []byte) [][]string {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, strings.TrimSpace(inlineText(c, source)))
		}
		rows = append(rows, row)
	}
	return rows
}
