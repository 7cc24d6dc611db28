package port

import "context"

// MarkupRenderer turns a screenshot into markup text.
type MarkupRenderer interface {
	Render(ctx context.Context, image []byte) (string, error)
}
