package domain

import (
	"bytes"
	"errors"
	"io"
)

// MaxImageBytes is the largest accepted image, 10 MiB.
const MaxImageBytes int64 = 10 * 1024 * 1024

// Accepted image media types.
const (
	MediaTypeJPEG  = "image/jpeg"
	MediaTypePNG   = "image/png"
	MediaTypeWEBP  = "image/webp"
	MediaTypeDICOM = "application/dicom"
)

// AllowedImageTypes lists the accepted media types.
func AllowedImageTypes() []string {
	return []string{MediaTypeJPEG, MediaTypePNG, MediaTypeWEBP, MediaTypeDICOM}
}

// IsAllowedImageType reports whether mediaType is on the allow-list.
func IsAllowedImageType(mediaType string) bool {
	switch mediaType {
	case MediaTypeJPEG, MediaTypePNG, MediaTypeWEBP, MediaTypeDICOM:
		return true
	default:
		return false
	}
}

// AcceptedImage is the token produced when an image passes intake validation. It keeps a
// handle on the file; the bytes are only encoded when the form is submitted.
type AcceptedImage struct {
	Token     string `json:"token"`
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	file      ImageFile
}

// NewAcceptedImage wraps a validated file.
func NewAcceptedImage(token, mediaType string, file ImageFile) *AcceptedImage {
	return &AcceptedImage{
		Token:     token,
		Filename:  file.Filename(),
		MediaType: mediaType,
		Size:      file.Size(),
		file:      file,
	}
}

// Open opens the underlying file.
func (a *AcceptedImage) Open() (io.ReadCloser, error) {
	if a == nil || a.file == nil {
		return nil, errors.New("accepted image has no backing file")
	}
	return a.file.Open()
}

// File returns the underlying file.
func (a *AcceptedImage) File() ImageFile {
	return a.file
}

// BytesImage is an ImageFile backed by memory.
type BytesImage struct {
	name        string
	contentType string
	data        []byte
}

// NewBytesImage creates an in-memory ImageFile.
func NewBytesImage(filename, contentType string, data []byte) *BytesImage {
	return &BytesImage{name: filename, contentType: contentType, data: data}
}

func (b *BytesImage) Filename() string    { return b.name }
func (b *BytesImage) Size() int64         { return int64(len(b.data)) }
func (b *BytesImage) ContentType() string { return b.contentType }
func (b *BytesImage) Bytes() []byte       { return b.data }

// Open returns a reader over the in-memory bytes.
func (b *BytesImage) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
