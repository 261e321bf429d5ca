package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// servedExts are the extensions a stored file may keep. Anything else is
// saved as .bin so the upload route never serves markup from this origin.
var servedExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true,
	".mp3": true, ".ogg": true, ".wav": true, ".mp4": true, ".webm": true,
}

func storedExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if servedExts[ext] {
		return ext
	}
	return ".bin"
}

// DiskUploader writes attachments under Dir and serves them from
// BaseURL + "/uploads/". It backs development setups without Cloudinary.
type DiskUploader struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

func NewDisk(dir, baseURL string, maxBytes int64) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskUploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, f File) (url string, err error) {
	start := time.Now()
	defer func() { observe("disk", start, err) }()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	name := uuid.NewString() + storedExt(f.Name)
	path := filepath.Join(u.Dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	src := f.Reader
	if u.MaxBytes > 0 {
		src = io.LimitReader(f.Reader, u.MaxBytes+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && u.MaxBytes > 0 && n > u.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %s: %w", ErrUpload, f.Name, err)
	}
	return u.BaseURL + "/uploads/" + name, nil
}
