// Package parser pulls fenced code blocks out of markdown replies.
package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is a fenced code block from markdown content.
type CodeBlock struct {
	// Hint is the paragraph immediately preceding the block.
	Hint string
	// Lang is the info string of the fence (e.g. "html", "css").
	Lang string
	// Content is the raw text inside the fence.
	Content string
}

// Document is a parsed markdown reply: its code blocks and the prose around them.
type Document struct {
	Blocks []CodeBlock
	Prose  string
}

// Parse walks the markdown AST once, collecting fenced code blocks and the
// text of top-level paragraphs and headings.
func Parse(source []byte) (Document, error) {
	var doc Document
	var prose []string
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			doc.Blocks = append(doc.Blocks, codeBlock(n, source))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading:
			if s := strings.TrimSpace(string(blockText(n, source))); s != "" {
				prose = append(prose, s)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return Document{}, err
	}
	doc.Prose = strings.Join(prose, "\n\n")
	return doc, nil
}

// ExtractCodeBlocks returns every fenced code block in source.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	doc, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return doc.Blocks, nil
}

func codeBlock(n *ast.FencedCodeBlock, source []byte) CodeBlock {
	var block CodeBlock
	if n.Info != nil {
		info := strings.Fields(string(n.Info.Text(source)))
		if len(info) > 0 {
			block.Lang = strings.ToLower(info[0])
		}
	}

	var content bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		content.Write(line.Value(source))
	}
	block.Content = content.String()

	if prev := n.PreviousSibling(); prev != nil {
		if p, ok := prev.(*ast.Paragraph); ok {
			block.Hint = strings.TrimSpace(string(blockText(p, source)))
		}
	}
	return block
}

// blockText returns the source lines of a block node.
func blockText(n ast.Node, source []byte) []byte {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
	return bytes.TrimRight(b.Bytes(), "\n")
}
