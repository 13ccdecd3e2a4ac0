package kmlout

import (
	"archive/zip"
	"io"
	"sort"
)

// WriteKMZ writes a KMZ archive: a zip whose first entry is doc.kml.
// Extra assets (icons, overlays) follow in sorted name order so the
// archive bytes are reproducible for identical inputs.
func WriteKMZ(w io.Writer, docKML []byte, assets map[string][]byte) error {
	zw := zip.NewWriter(w)

	entry, err := zw.Create("doc.kml")
	if err != nil {
		return err
	}
	if _, err := entry.Write(docKML); err != nil {
		return err
	}

	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := entry.Write(assets[name]); err != nil {
			return err
		}
	}

	return zw.Close()
}
