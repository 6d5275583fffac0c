package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"

	"github.com/carver777/health-management/internal/stream"
)

type TerminalRenderer struct {
	markdown  *glamour.TermRenderer
	plainText bool
	buffer    strings.Builder
}

func NewTerminalRenderer(usePlainText bool, wrap int) *TerminalRenderer {
	var md *glamour.TermRenderer
	if !usePlainText {
		md, _ = glamour.NewTermRenderer(
			markdown.WithWrap(wrap),
			glamour.WithAutoStyle(),
		)
	}

	return &TerminalRenderer{
		markdown:  md,
		plainText: usePlainText,
	}
}

// Render pulls events from the queue until it ends, writing content to the
// terminal at natural markdown break points. A queue that ends with an error
// is reported after whatever was already received has been rendered.
func (t *TerminalRenderer) Render(ctx context.Context, queue *stream.Queue[stream.ChatEvent]) error {
	for {
		event, ok, err := queue.Next(ctx)
		if err != nil {
			t.flush()
			return fmt.Errorf("stream error: %w", err)
		}
		if !ok {
			break
		}

		t.buffer.WriteString(event.Content)
		content := t.buffer.String()

		if idx := findMarkdownBreakPoint(content); idx > 0 {
			if err := t.renderContent(content[:idx]); err != nil {
				return err
			}
			// Reset buffer with remaining content
			remaining := content[idx:]
			t.buffer.Reset()
			t.buffer.WriteString(remaining)
		}
	}

	// Render any remaining content
	if err := t.flush(); err != nil {
		return err
	}

	fmt.Println()
	return nil
}

func (t *TerminalRenderer) flush() error {
	remaining := t.buffer.String()
	t.buffer.Reset()
	if remaining == "" {
		return nil
	}
	return t.renderContent(remaining)
}

func (t *TerminalRenderer) renderContent(content string) error {
	if t.plainText {
		fmt.Print(content)
		return nil
	}

	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "#") {
		fmt.Println()
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	fmt.Println(strings.TrimSpace(mdContent))
	return nil
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}
