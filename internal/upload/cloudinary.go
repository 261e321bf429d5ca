package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aryamantandon18/connectly/internal/logging"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// assetAPI is the part of the Cloudinary client the uploader needs.
type assetAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryUploader sends attachments to Cloudinary with resource type
// auto. Repeated failures open a circuit breaker so a Cloudinary outage
// fails requests fast instead of holding them.
type CloudinaryUploader struct {
	api     assetAPI
	folder  string
	breaker *gobreaker.CircuitBreaker[string]
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return newCloudinary(&cld.Upload, folder), nil
}

func newCloudinary(api assetAPI, folder string) *CloudinaryUploader {
	log := logging.With("upload")
	settings := gobreaker.Settings{
		Name:        "cloudinary",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &CloudinaryUploader{
		api:     api,
		folder:  folder,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (u *CloudinaryUploader) Upload(ctx context.Context, f File) (url string, err error) {
	start := time.Now()
	defer func() { observe("cloudinary", start, err) }()

	url, err = u.breaker.Execute(func() (string, error) {
		res, err := u.api.Upload(ctx, f.Reader, uploader.UploadParams{
			Folder:       u.folder,
			ResourceType: "auto",
		})
		if err != nil {
			return "", err
		}
		if res.Error.Message != "" {
			return "", errors.New(res.Error.Message)
		}
		if res.SecureURL == "" {
			return "", errors.New("cloudinary returned no url")
		}
		return res.SecureURL, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpload, f.Name, err)
	}
	return url, nil
}
