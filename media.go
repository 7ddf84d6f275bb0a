package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

const (
	productFolder = "art-products"
	logoFolder    = "art-gallery-logo"

	// shrink anything over 2000px and let Cloudinary pick the quality
	productTransformation = "c_limit,h_2000,w_2000/q_auto"
)

// UploadOptions controls where and how an asset is stored.
type UploadOptions struct {
	Folder         string
	Transformation string
}

// MediaHost uploads and deletes hosted images.
type MediaHost interface {
	Upload(ctx context.Context, file string, opts UploadOptions) (Image, error)
	Destroy(ctx context.Context, publicID string) error
}

type cloudinaryHost struct {
	cld *cloudinary.Cloudinary
}

func newCloudinaryHost(cfg Config) (*cloudinaryHost, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cfg.CloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cfg.CloudinaryURL)
	} else {
		cld, err = cloudinary.NewFromParams(cfg.CloudinaryName, cfg.CloudinaryKey, cfg.CloudinarySecret)
	}
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	cld.Config.URL.Secure = true
	return &cloudinaryHost{cld: cld}, nil
}

// Upload sends a base64 data URI (or remote URL) to Cloudinary.
func (h *cloudinaryHost) Upload(ctx context.Context, file string, opts UploadOptions) (Image, error) {
	res, err := h.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         opts.Folder,
		ResourceType:   "auto",
		Transformation: opts.Transformation,
	})
	if err != nil {
		return Image{}, &UpstreamError{Service: "cloudinary upload", Err: err}
	}
	if res.Error.Message != "" {
		return Image{}, &UpstreamError{Service: "cloudinary upload", Err: errors.New(res.Error.Message)}
	}
	return Image{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (h *cloudinaryHost) Destroy(ctx context.Context, publicID string) error {
	res, err := h.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return &UpstreamError{Service: "cloudinary destroy", Err: err}
	}
	if res.Error.Message != "" {
		return &UpstreamError{Service: "cloudinary destroy", Err: errors.New(res.Error.Message)}
	}
	return nil
}

// devMediaHost stands in for Cloudinary in DEV_MODE.
type devMediaHost struct{}

func (devMediaHost) Upload(_ context.Context, file string, opts UploadOptions) (Image, error) {
	if strings.TrimSpace(file) == "" {
		return Image{}, invalid("file", "file is required")
	}
	id := opts.Folder + "/dev-" + uuid.NewString()
	return Image{URL: "https://via.placeholder.com/800x600.png?text=DEV+IMAGE", PublicID: id}, nil
}

func (devMediaHost) Destroy(_ context.Context, publicID string) error {
	log.Printf("dev media: destroy %s", publicID)
	return nil
}

// destroyBestEffort deletes an asset without letting failure reach the caller.
// It detaches from the request context so a disconnecting client does not
// abort the cleanup.
func destroyBestEffort(ctx context.Context, media MediaHost, publicID string) {
	if strings.TrimSpace(publicID) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := media.Destroy(ctx, publicID); err != nil {
		log.Printf("media destroy %s: %v", publicID, err)
		return
	}
	log.Printf("deleted media asset: %s", publicID)
}

// optimizeImageURL asks Cloudinary for a resized, auto-format rendition.
// URLs from other hosts are returned unchanged.
func optimizeImageURL(url string, width int) string {
	if url == "" || !strings.Contains(url, "res.cloudinary.com") || !strings.Contains(url, "/upload/") {
		return url
	}
	params := "f_auto,q_auto"
	if width > 0 {
		params = "c_limit,w_" + strconv.Itoa(width) + ",f_auto,q_auto"
	}
	return strings.Replace(url, "/upload/", "/upload/"+params+"/", 1)
}
