package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symptom-checker-server/internal/domain"
)

const imageFormField = "image"

// uploadedFile adapts a multipart file header to domain.ImageFile.
type uploadedFile struct {
	header *multipart.FileHeader
}

func (u *uploadedFile) Filename() string    { return u.header.Filename }
func (u *uploadedFile) Size() int64         { return u.header.Size }
func (u *uploadedFile) ContentType() string { return u.header.Header.Get("Content-Type") }

func (u *uploadedFile) Open() (io.ReadCloser, error) {
	return u.header.Open()
}

// imageFromRequest returns the uploaded image, or nil when the request has none.
func imageFromRequest(c *gin.Context) (domain.ImageFile, error) {
	header, err := c.FormFile(imageFormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	return &uploadedFile{header: header}, nil
}

// retainImage copies an upload into memory so it outlives the request. Oversized files are
// left as they are; intake rejects them on the declared size without reading.
func retainImage(file domain.ImageFile) (domain.ImageFile, error) {
	if file == nil || file.Size() > domain.MaxImageBytes {
		return file, nil
	}
	rc, err := file.Open()
	if err != nil {
		return nil, domain.NewImageError(domain.FileReadError, "Could not read the selected file.", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, domain.MaxImageBytes+1))
	if err != nil {
		return nil, domain.NewImageError(domain.FileReadError, "Could not read the selected file.", err)
	}
	if int64(len(data)) > domain.MaxImageBytes {
		return nil, domain.NewImageError(domain.FileTooLarge,
			fmt.Sprintf("Max file size is %dMB.", domain.MaxImageBytes/(1024*1024)), nil)
	}
	return domain.NewBytesImage(file.Filename(), file.ContentType(), data), nil
}
