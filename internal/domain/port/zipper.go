package port

import (
	"context"
	"io"
)

type ZipEntry struct {
	Name string
	Data []byte
}

type Zipper interface {
	CreateZip(ctx context.Context, entries []ZipEntry, w io.Writer) error
}
