// Package upload stores message attachments and returns their public URL.
package upload

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aryamantandon18/connectly/internal/metrics"
)

var (
	ErrUpload   = errors.New("file upload failed")
	ErrTooLarge = errors.New("file too large")
)

// File is an attachment as received from the client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type Uploader interface {
	// Upload stores f and returns the URL it is reachable at.
	Upload(ctx context.Context, f File) (string, error)
}

func observe(backend string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.UploadDuration.WithLabelValues(backend, outcome).Observe(time.Since(start).Seconds())
}
