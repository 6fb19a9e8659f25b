package reducer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dtnitsch/pixbatch/models"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".pdf":  "application/pdf",
}

// MIMEType infers a content type from a file name's extension.
func MIMEType(name string) string {
	if t, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

func fileKey(index int) string {
	return "file" + strconv.Itoa(index+1)
}

// multipartBody encodes the upload request: account fields, options, the
// file_paths mapping and one part per item.
func (b *Batch) multipartBody(opts models.Options) ([]byte, string, error) {
	cfg := b.client.cfg
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"key", cfg.APIKey},
		{"plugin_version", cfg.PluginVersion},
		{"wait", strconv.Itoa(waitFor(opts, uploadWait))},
	}
	for _, k := range opts.Keys() {
		if reservedKeys[k] || opts[k] == nil {
			continue
		}
		fields = append(fields, [2]string{k, models.FormatOption(opts[k])})
	}

	paths := make(map[string]string, len(b.items))
	for _, it := range b.items {
		paths[fileKey(it.Index)] = it.Input.BaseName(it.Index)
	}
	mapping, err := json.Marshal(paths)
	if err != nil {
		return nil, "", encodeError(err)
	}
	fields = append(fields, [2]string{"file_paths", string(mapping)})

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", encodeError(err)
		}
	}

	for _, it := range b.items {
		name := it.Input.BaseName(it.Index)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, fileKey(it.Index), name))
		h.Set("Content-Type", MIMEType(name))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", encodeError(err)
		}
		if _, err := part.Write(it.data); err != nil {
			return nil, "", encodeError(err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", encodeError(err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func encodeError(err error) error {
	return apierr.New(apierr.KindInvalidRequest, "cannot encode upload request", apierr.WithCause(err))
}
