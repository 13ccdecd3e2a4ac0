package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"sort"
)

// GeoTIFF output: little-endian, chunky RGBA with unassociated alpha, one
// deflate-compressed strip, georeferenced with a pixel scale + tiepoint pair
// and a geographic WGS-84 geokey directory. Readers that ignore the geo tags
// still see a plain RGBA TIFF.

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagExtraSamples    = 338
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoAsciiParams  = 34737

	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	compressionDeflate = 8
	photometricRGB     = 2
	alphaUnassociated  = 2
)

// geoKeys: geographic model, pixel-is-area raster, EPSG:4326, "WGS 84|"
// citation stored in the ASCII params tag.
var geoKeys = []uint16{
	1, 1, 0, 4,
	1024, 0, 1, 2,
	1025, 0, 1, 1,
	2048, 0, 1, 4326,
	2049, tagGeoAsciiParams, 7, 0,
}

const geoCitation = "WGS 84|"

type ifdEntry struct {
	tag     uint16
	typ     uint16
	count   uint32
	inline  [4]byte // value field when the payload fits in four bytes
	payload []byte  // out-of-line payload, offset patched at layout time
}

func shortEntry(tag uint16, vals ...uint16) ifdEntry {
	e := ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vals))}
	if len(vals) <= 2 {
		for i, v := range vals {
			binary.LittleEndian.PutUint16(e.inline[i*2:], v)
		}
		return e
	}
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	e.payload = buf
	return e
}

func longEntry(tag uint16, v uint32) ifdEntry {
	e := ifdEntry{tag: tag, typ: typeLong, count: 1}
	binary.LittleEndian.PutUint32(e.inline[:], v)
	return e
}

func doubleEntry(tag uint16, vals ...float64) ifdEntry {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), payload: buf.Bytes()}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	buf := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(buf)), payload: buf}
}

// EncodeGeoTIFF writes img as a georeferenced RGBA GeoTIFF registered by t.
func EncodeGeoTIFF(w io.Writer, img *image.NRGBA, t Transform) error {
	if img == nil || img.Rect.Empty() {
		return fmt.Errorf("geotiff: empty image")
	}
	width := img.Rect.Dx()
	height := img.Rect.Dy()

	strip, err := deflateStrip(img, width, height)
	if err != nil {
		return fmt.Errorf("geotiff: compress strip: %w", err)
	}

	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(width)),
		longEntry(tagImageLength, uint32(height)),
		shortEntry(tagBitsPerSample, 8, 8, 8, 8),
		shortEntry(tagCompression, compressionDeflate),
		shortEntry(tagPhotometric, photometricRGB),
		longEntry(tagStripOffsets, 0), // patched below
		shortEntry(tagSamplesPerPixel, 4),
		longEntry(tagRowsPerStrip, uint32(height)),
		longEntry(tagStripByteCounts, uint32(len(strip))),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagExtraSamples, alphaUnassociated),
		doubleEntry(tagModelPixelScale, t.PixelW, t.PixelH, 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, t.OriginX, t.OriginY, 0),
		shortEntry(tagGeoKeyDirectory, geoKeys...),
		asciiEntry(tagGeoAsciiParams, geoCitation),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header, IFD, out-of-line payloads, strip data.
	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	cursor := uint32(headerSize + ifdSize)
	for i := range entries {
		if entries[i].payload == nil {
			continue
		}
		if cursor%2 == 1 {
			cursor++
		}
		binary.LittleEndian.PutUint32(entries[i].inline[:], cursor)
		cursor += uint32(len(entries[i].payload))
	}
	if cursor%2 == 1 {
		cursor++
	}
	stripOffset := cursor
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			binary.LittleEndian.PutUint32(entries[i].inline[:], stripOffset)
		}
	}

	out := new(bytes.Buffer)
	out.Grow(int(stripOffset) + len(strip))
	out.WriteString("II")
	binary.Write(out, binary.LittleEndian, uint16(42))
	binary.Write(out, binary.LittleEndian, uint32(headerSize))

	binary.Write(out, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(out, binary.LittleEndian, e.tag)
		binary.Write(out, binary.LittleEndian, e.typ)
		binary.Write(out, binary.LittleEndian, e.count)
		out.Write(e.inline[:])
	}
	binary.Write(out, binary.LittleEndian, uint32(0)) // no next IFD

	for _, e := range entries {
		if e.payload == nil {
			continue
		}
		if out.Len()%2 == 1 {
			out.WriteByte(0)
		}
		out.Write(e.payload)
	}
	if out.Len()%2 == 1 {
		out.WriteByte(0)
	}
	out.Write(strip)

	_, err = w.Write(out.Bytes())
	return err
}

// deflateStrip zlib-compresses the image as one chunky RGBA strip.
func deflateStrip(img *image.NRGBA, width, height int) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	rowBytes := 4 * width
	for row := 0; row < height; row++ {
		start := row * img.Stride
		if _, err := zw.Write(img.Pix[start : start+rowBytes]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
