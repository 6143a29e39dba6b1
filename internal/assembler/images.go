package assembler

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"regexp"
	"strings"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
)

// dataURIPattern matches "data:image/<subtype>;base64," prefixes.
var dataURIPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,`)

// maxFetchedImageBytes bounds a VisionAll URL fetch.
const maxFetchedImageBytes = 20 << 20

var allowedImageMime = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 { // strip "; charset=..." etc.
		m = m[:i]
	}
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

// decodeEmbeddedImage resolves an inline (data URI or Anthropic
// base64+media_type) image to raw bytes and a normalized mime type.
func decodeEmbeddedImage(img *rawImage) (mimeType string, data []byte, err error) {
	if img.Base64Data != "" {
		raw, derr := base64.StdEncoding.DecodeString(img.Base64Data)
		if derr != nil {
			return "", nil, gateway.ErrImageUnsupported
		}
		return normalizeMime(img.MediaType), raw, nil
	}

	m := dataURIPattern.FindStringSubmatch(img.DataURI)
	if m == nil {
		return "", nil, gateway.ErrImageUnsupported
	}
	raw, derr := base64.StdEncoding.DecodeString(img.DataURI[len(m[0]):])
	if derr != nil {
		return "", nil, gateway.ErrImageUnsupported
	}
	return normalizeMime("image/" + m[1]), raw, nil
}

// resolveImage applies the §4.6 step 4 vision policy to a single image
// reference, returning a validated, dimension-probed ImagePart.
func (a *Assembler) resolveImage(ctx context.Context, img *rawImage, rc RequestContext) (gateway.ImagePart, error) {
	if a.opts.VisionPolicy == VisionNone {
		return gateway.ImagePart{}, gateway.ErrVisionDisabled
	}

	isURL := img.Base64Data == "" &&
		(strings.HasPrefix(img.DataURI, "http://") || strings.HasPrefix(img.DataURI, "https://"))
	if isURL {
		if a.opts.VisionPolicy != VisionAll {
			return gateway.ImagePart{}, gateway.ErrImageUnsupported
		}
		return a.fetchImage(ctx, img.DataURI, rc)
	}

	mime, data, err := decodeEmbeddedImage(img)
	if err != nil {
		return gateway.ImagePart{}, err
	}
	return probeAndBuild(mime, data)
}

func (a *Assembler) fetchImage(ctx context.Context, url string, rc RequestContext) (gateway.ImagePart, error) {
	client := rc.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gateway.ImagePart{}, gateway.ErrImageUnsupported
	}
	resp, err := client.Do(req)
	if err != nil {
		return gateway.ImagePart{}, gateway.ErrImageUnsupported
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchedImageBytes))
	if err != nil {
		return gateway.ImagePart{}, gateway.ErrImageUnsupported
	}

	mime := normalizeMime(resp.Header.Get("Content-Type"))
	if !allowedImageMime[mime] {
		mime = sniffMime(data)
	}
	return probeAndBuild(mime, data)
}

func probeAndBuild(mime string, data []byte) (gateway.ImagePart, error) {
	if !allowedImageMime[mime] {
		return gateway.ImagePart{}, gateway.ErrImageUnsupported
	}
	w, h, err := probeImage(mime, data)
	if err != nil {
		return gateway.ImagePart{}, err
	}
	return gateway.ImagePart{MimeType: mime, Bytes: data, Width: w, Height: h}, nil
}

// sniffMime falls back to content sniffing when a fetched response's
// Content-Type is missing or untrustworthy.
func sniffMime(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "image/png"
	case "image/jpeg":
		return "image/jpeg"
	case "image/gif":
		return "image/gif"
	default:
		if len(data) >= 12 && string(data[8:12]) == "WEBP" {
			return "image/webp"
		}
		return ""
	}
}
