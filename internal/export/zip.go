package export

import (
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// Zip writes images to w as a ZIP archive, in the given order. PNG data is
// already compressed, so entries are stored.
func Zip(w io.Writer, images []Image, modTime time.Time) error {
	zw := zip.NewWriter(w)
	for _, img := range images {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     img.Name,
			Method:   zip.Store,
			Modified: modTime,
		})
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := f.Write(img.Data); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}
