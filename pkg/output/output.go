// Package output picks which optimized variant to download for an item and
// decides where it is written.
package output

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/dtnitsch/pixbatch/models"
)

// PickBestURL returns the URL of the variant that matches opts: AVIF, then
// WebP when convertto asks for them, then the original format. Lossy
// variants are preferred unless lossy is 0. It returns "" when the meta
// has no usable URL.
func PickBestURL(meta *models.ResponseMeta, opts models.Options) string {
	if meta == nil {
		return ""
	}
	convertto := strings.ToLower(opts.String(models.OptConvertTo))
	lossy := 1
	if v, ok, err := opts.Int(models.OptLossy); ok && err == nil {
		lossy = v
	}

	pick := func(lossyURL, losslessURL string) string {
		if lossy > 0 && usable(lossyURL) {
			return lossyURL
		}
		if usable(losslessURL) {
			return losslessURL
		}
		return ""
	}

	if strings.Contains(convertto, "avif") {
		if u := pick(meta.AVIFLossyURL, meta.AVIFLosslessURL); u != "" {
			return u
		}
	}
	if strings.Contains(convertto, "webp") {
		if u := pick(meta.WebPLossyURL, meta.WebPLosslessURL); u != "" {
			return u
		}
	}
	return pick(meta.LossyURL, meta.LosslessURL)
}

func usable(u string) bool {
	return u != "" && u != models.NotAvailable
}

// convertExt maps a convertto option to a file extension.
func convertExt(convertto string) string {
	c := strings.ToLower(convertto)
	switch {
	case c == "":
		return ""
	case strings.Contains(c, "avif"):
		return "avif"
	case strings.Contains(c, "webp"):
		return "webp"
	case strings.Contains(c, "png"):
		return "png"
	case strings.Contains(c, "jpeg"):
		return "jpeg"
	case strings.Contains(c, "jpg"):
		return "jpg"
	}
	return ""
}

func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
}

// FileName returns the output file name for the item at index. The base is
// taken from sourceName (or optimized_<n>); the extension from convertto,
// then bestURL, then sourceName, then "bin".
func FileName(index int, sourceName, bestURL, convertto string) string {
	base := path.Base(strings.ReplaceAll(sourceName, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	srcExt := path.Ext(base)
	stem := strings.TrimSuffix(base, srcExt)
	if stem == "" {
		stem = fmt.Sprintf("optimized_%d", index+1)
	}

	ext := convertExt(convertto)
	if ext == "" {
		ext = urlExt(bestURL)
	}
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(srcExt, "."))
	}
	if ext == "" {
		ext = "bin"
	}
	return stem + "." + ext
}

// UniqueName returns name, or name with a _2, _3, ... suffix on its stem
// when used already holds it. The returned name is added to used.
func UniqueName(name string, used map[string]bool) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

// SourceName returns the best name for an item's source: its display name,
// else the last path segment of the service's OriginalURL.
func SourceName(displayName string, meta *models.ResponseMeta) string {
	if displayName != "" {
		return displayName
	}
	if meta == nil || meta.OriginalURL == "" {
		return ""
	}
	u, err := url.Parse(meta.OriginalURL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

// Key returns the object key an artifact is stored under, grouped per batch.
// Example: 3f2a.../photo.webp
func Key(batchID, fileName string) string {
	if batchID == "" {
		return fileName
	}
	return path.Join(batchID, fileName)
}
