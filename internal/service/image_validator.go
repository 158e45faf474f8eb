package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/symptom-checker-server/internal/domain"
)

// dicomPreambleOffset is where the "DICM" magic sits in a Part 10 file.
const dicomPreambleOffset = 128

// sniffBytes is how much of the file is read when the declared type is missing.
const sniffBytes = 3072

// ImageValidator gates image selection on size and media type, and turns accepted files
// into data URIs. It is independent from the form validator.
type ImageValidator struct {
	maxBytes int64
}

// NewImageValidator creates an image validator with the 10 MiB limit.
func NewImageValidator() *ImageValidator {
	return &ImageValidator{maxBytes: domain.MaxImageBytes}
}

// Check validates a newly selected file. A nil file means the selection was cleared and
// yields (nil, nil). Size is checked before type, so an oversized file of an unsupported
// type reports FileTooLarge.
func (iv *ImageValidator) Check(file domain.ImageFile) (*domain.AcceptedImage, error) {
	if file == nil {
		return nil, nil
	}

	if file.Size() > iv.maxBytes {
		return nil, domain.NewImageError(domain.FileTooLarge,
			fmt.Sprintf("Max file size is %dMB.", iv.maxBytes/(1024*1024)), nil)
	}

	mediaType, err := iv.resolveMediaType(file)
	if err != nil {
		return nil, err
	}
	if !domain.IsAllowedImageType(mediaType) {
		return nil, domain.NewImageError(domain.UnsupportedFileType,
			".jpg, .jpeg, .png, .webp and .dcm files are accepted.", nil)
	}

	return domain.NewAcceptedImage(uuid.New().String(), mediaType, file), nil
}

// resolveMediaType uses the declared type when there is one. Browsers often send DICOM
// files with an empty or generic type, so those are identified by content or extension.
func (iv *ImageValidator) resolveMediaType(file domain.ImageFile) (string, error) {
	declared := normalizeMediaType(file.ContentType())
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	if strings.EqualFold(filepath.Ext(file.Filename()), ".dcm") {
		return domain.MediaTypeDICOM, nil
	}

	head, err := readHead(file, sniffBytes)
	if err != nil {
		return "", domain.NewImageError(domain.FileReadError, "Could not read the selected file.", err)
	}
	if isDICOM(head) {
		return domain.MediaTypeDICOM, nil
	}
	return normalizeMediaType(mimetype.Detect(head).String()), nil
}

func normalizeMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return strings.ToLower(mt)
}

func isDICOM(head []byte) bool {
	return len(head) >= dicomPreambleOffset+4 &&
		bytes.Equal(head[dicomPreambleOffset:dicomPreambleOffset+4], []byte("DICM"))
}

func readHead(file domain.ImageFile, n int64) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, n))
}

// Preview reads an accepted image and returns it as a data URI for display. Read
// failures are FileReadError; they are not validation failures.
func (iv *ImageValidator) Preview(ctx context.Context, img *domain.AcceptedImage) (string, error) {
	if img == nil {
		return "", nil
	}
	uri, err := EncodeDataURI(ctx, img)
	if err != nil {
		return "", domain.NewImageError(domain.FileReadError, "Could not read the selected file.", err)
	}
	return uri, nil
}

// EncodeDataURI reads the full image and returns "data:<media-type>;base64,<payload>".
// The read is bounded by the 10 MiB limit plus one byte so a file that grew after
// validation is caught.
func EncodeDataURI(ctx context.Context, img *domain.AcceptedImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rc, err := img.Open()
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, domain.MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > domain.MaxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", domain.MaxImageBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return MakeDataURI(img.MediaType, data), nil
}

// MakeDataURI formats raw bytes as a base64 data URI.
func MakeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("data URI has no payload")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URI: %w", err)
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}
