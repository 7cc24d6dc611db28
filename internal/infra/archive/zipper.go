package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/framelab/actionframes/internal/domain/port"
)

type ZipCreator struct {
	modified time.Time
}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{modified: time.Now()}
}

// CreateZip writes entries to w in the given order. Already compressed image
// formats are stored, everything else is deflated.
func (z *ZipCreator) CreateZip(ctx context.Context, entries []port.ZipEntry, w io.Writer) error {
	zipWriter := zip.NewWriter(w)

	for _, e := range entries {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		if err := z.addEntry(zipWriter, e); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to zip: %w", e.Name, err)
		}
	}

	return zipWriter.Close()
}

func (z *ZipCreator) addEntry(zw *zip.Writer, e port.ZipEntry) error {
	header := &zip.FileHeader{
		Name:     e.Name,
		Method:   methodFor(e.Name),
		Modified: z.modified,
	}
	header.SetMode(0644)

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = writer.Write(e.Data)
	return err
}

func methodFor(name string) uint16 {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "jpg", "jpeg", "png", "webp":
		return zip.Store
	default:
		return zip.Deflate
	}
}
