package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	wsq "github.com/jtejido/go-wsq"
	_ "github.com/spakin/netpbm"
	"golang.org/x/exp/slices"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	ErrNotImage = errors.New("capture: file is not an image")
	ErrEmpty    = errors.New("capture: file is empty")
)

// DefaultMIMEType is assumed when an accepted image carries no subtype.
const DefaultMIMEType = "image/png"

// Scanner and legacy formats re-encoded as PNG before upload. Any other
// image type is forwarded untouched.
var converted = []string{
	"image/x-wsq",
	"image/x-portable-graymap",
	"image/x-portable-pixmap",
	"image/x-portable-bitmap",
	"image/x-portable-anymap",
	"image/x-portable-arbitrarymap",
	"image/bmp",
	"image/x-ms-bmp",
	"image/tiff",
	"image/gif",
}

// wsqMagic is the WSQ start-of-image marker.
const wsqMagic = "\xff\xa0"

func init() {
	image.RegisterFormat("wsq", wsqMagic, wsq.Decode, wsqConfig)

	_ = mime.AddExtensionType(".wsq", "image/x-wsq")
	_ = mime.AddExtensionType(".bmp", "image/bmp")
	_ = mime.AddExtensionType(".tif", "image/tiff")
	_ = mime.AddExtensionType(".tiff", "image/tiff")
	_ = mime.AddExtensionType(".pgm", "image/x-portable-graymap")
	_ = mime.AddExtensionType(".ppm", "image/x-portable-pixmap")
	_ = mime.AddExtensionType(".pbm", "image/x-portable-bitmap")
	_ = mime.AddExtensionType(".pam", "image/x-portable-arbitrarymap")
	_ = mime.AddExtensionType(".pnm", "image/x-portable-anymap")
}

// Image is a fingerprint scan as handed over by the user.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Accept gates a candidate file on its MIME type. Anything that does not
// start with "image/" is rejected.
func Accept(filename, mimeType string, data []byte) (Image, error) {
	mimeType = orExtension(mimeType, filename)
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%w: %q has type %q", ErrNotImage, filename, mimeType)
	}
	if mimeType == "image/" {
		mimeType = DefaultMIMEType
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: %q", ErrEmpty, filename)
	}
	return Image{Filename: filepath.Base(filename), MIMEType: mimeType, Data: data}, nil
}

// FromFileHeader reads a multipart upload.
func FromFileHeader(fh *multipart.FileHeader) (Image, error) {
	mimeType := fh.Header.Get("Content-Type")
	if t := orExtension(mimeType, fh.Filename); !strings.HasPrefix(t, "image/") {
		return Image{}, fmt.Errorf("%w: %q has type %q", ErrNotImage, fh.Filename, t)
	}
	f, err := fh.Open()
	if err != nil {
		return Image{}, fmt.Errorf("capture: open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return Image{}, fmt.Errorf("capture: read upload: %w", err)
	}
	return Accept(fh.Filename, mimeType, data)
}

// Load reads a scan from disk, typing it by extension.
func Load(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("capture: %w", err)
	}
	return Accept(path, typeByExtension(path), data)
}

// Base64 is the standard-encoding payload sent inline to the provider.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// wsqConfig has to decode the whole scan; the WSQ frame header sits behind
// the tables.
func wsqConfig(r io.Reader) (image.Config, error) {
	m, err := wsq.Decode(r)
	if err != nil {
		return image.Config{}, err
	}
	b := m.Bounds()
	return image.Config{ColorModel: m.ColorModel(), Width: b.Dx(), Height: b.Dy()}, nil
}

// Normalize re-encodes scanner and legacy formats (WSQ, Netpbm, BMP, TIFF,
// GIF) as PNG. Every other image type is returned untouched.
func Normalize(img Image) (Image, error) {
	if !slices.Contains(converted, img.MIMEType) {
		return img, nil
	}
	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return Image{}, fmt.Errorf("capture: decode %s: %w", img.MIMEType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return Image{}, fmt.Errorf("capture: encode %s as png: %w", format, err)
	}
	name := strings.TrimSuffix(img.Filename, filepath.Ext(img.Filename)) + ".png"
	return Image{Filename: name, MIMEType: "image/png", Data: buf.Bytes()}, nil
}

func orExtension(mimeType, filename string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		return typeByExtension(filename)
	}
	return mimeType
}

func typeByExtension(filename string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}
