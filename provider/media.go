// Package provider holds upload/normalization helpers that sit in front
// of the Cloud API client: provider/cloudapi speaks the wire protocol,
// this file decides what bytes get sent over it.
package provider

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/provider/cloudapi"
)

// MaxHeaderDimension is the longest edge a template header image is
// allowed to keep; anything larger is downscaled before upload so a
// phone camera photo doesn't get rejected by the Cloud API's per-file
// size ceiling.
const MaxHeaderDimension = 1600

// UploadHeaderImage takes an already-decoded image r (see DecodeImage),
// downscales it if either dimension exceeds MaxHeaderDimension,
// re-encodes it as jpeg, and uploads it through the Cloud API's
// resumable upload protocol, returning the upload's file handle.
// cloudapi.TemplateSend carries only a header URL, so no send path in
// this module takes the handle.
func UploadHeaderImage(ctx context.Context, client *cloudapi.Client, appID, accessToken, fileName string, r image.Image) (string, error) {
	normalized := r
	if b := r.Bounds(); b.Dx() > MaxHeaderDimension || b.Dy() > MaxHeaderDimension {
		normalized = imaging.Fit(r, MaxHeaderDimension, MaxHeaderDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", apperror.Internal("provider: re-encode header image", err)
	}

	session, err := client.InitUploadSession(ctx, appID, accessToken, fileName, int64(buf.Len()), "image/jpeg")
	if err != nil {
		return "", err
	}
	return client.UploadFile(ctx, session, accessToken, 0, bytes.NewReader(buf.Bytes()))
}

// DecodeImage sniffs and decodes any of the formats UploadHeaderImage
// accepts (jpeg/png/gif/bmp/webp), imported here solely for their
// image.RegisterFormat side effects.
func DecodeImage(r *bytes.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, apperror.Validation("provider: unrecognized image format")
	}
	return img, nil
}
