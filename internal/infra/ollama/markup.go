// Package ollama renders action frames to HTML with a local vision model.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultModel   = "llava"
	DefaultTimeout = 5 * time.Minute

	markupPrompt = "Take this image and write an exact replica in HTML. " +
		"We need the HTML to look as close as possible to the original image. " +
		"Reply with the HTML document only."
)

var fencedBlock = regexp.MustCompile("(?s)```(?:html)?\\s*\n(.*?)```")

// MarkupRenderer implements port.MarkupRenderer on top of the Ollama chat API.
type MarkupRenderer struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

func NewMarkupRenderer(serverURL, model string, timeout time.Duration) (*MarkupRenderer, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ollama url %q", serverURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MarkupRenderer{
		client:  api.NewClient(base, http.DefaultClient),
		model:   model,
		timeout: timeout,
	}, nil
}

func (r *MarkupRenderer) Render(ctx context.Context, image []byte) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stream := false
	req := &api.ChatRequest{
		Model: r.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: markupPrompt,
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream: &stream,
	}

	var sb strings.Builder
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	out := extractMarkup(sb.String())
	if out == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return out, nil
}

// extractMarkup strips a surrounding markdown code fence if the model added one.
func extractMarkup(content string) string {
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}
