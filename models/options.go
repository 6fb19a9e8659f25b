package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// Option keys understood by the service. Options are forwarded verbatim,
// so keys outside this list are allowed.
const (
	OptLossy        = "lossy"
	OptResize       = "resize"
	OptResizeWidth  = "resize_width"
	OptResizeHeight = "resize_height"
	OptUpscale      = "upscale"
	OptWait         = "wait"
	OptConvertTo    = "convertto"
	OptCMYK2RGB     = "cmyk2rgb"
	OptKeepExif     = "keep_exif"
	OptRefresh      = "refresh"
	OptBgRemove     = "bg_remove"
)

// Lossy levels.
const (
	Lossless = 0
	Lossy    = 1
	Glossy   = 2
)

// Resize modes.
const (
	ResizeNone      = 0
	ResizeOuter     = 1
	ResizeInner     = 3
	ResizeSmartCrop = 4
)

// Options are free-form optimization parameters sent with every call.
type Options map[string]any

// Merge returns a copy of o with every key of other applied on top.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Int returns the numeric value stored under key.
func (o Options) Int(key string) (int, bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	case bool:
		if n {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("option %s: %q is not a number", key, n)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("option %s: unsupported type %T", key, v)
	}
}

// String returns the string form of key, or "" when unset.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	return FormatOption(v)
}

// Keys returns the option keys sorted, for deterministic encoding.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatOption renders an option value the way form fields carry it.
func FormatOption(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Validate applies the service's parameter sanity rules.
func (o Options) Validate() error {
	invalid := func(msg string) error {
		return apierr.New(apierr.KindInvalidRequest, msg, apierr.WithCode(-116))
	}

	resize, _, err := o.Int(OptResize)
	if err != nil {
		return invalid(err.Error())
	}
	if resize > 0 {
		w, _, werr := o.Int(OptResizeWidth)
		h, _, herr := o.Int(OptResizeHeight)
		if werr != nil || herr != nil || (w <= 0 && h <= 0) {
			return invalid("resize is set but resize_width/resize_height are missing or invalid")
		}
	}

	if up, ok, err := o.Int(OptUpscale); err != nil {
		return invalid(err.Error())
	} else if ok && up != 0 && up != 2 && up != 3 && up != 4 {
		return invalid("upscale must be 0, 2, 3, or 4")
	}

	if wait, ok, err := o.Int(OptWait); err != nil {
		return invalid(err.Error())
	} else if ok && (wait < 0 || wait > MaxWait) {
		return invalid("wait must be between 0 and 30")
	}

	return nil
}

// The helpers below build the option sets behind the CLI feature flags.

func LossyLevel(level int) Options { return Options{OptLossy: level} }

func Upscale(factor int) Options { return Options{OptUpscale: factor} }

func Resize(mode, width, height int) Options {
	return Options{OptResize: mode, OptResizeWidth: width, OptResizeHeight: height}
}

func Convert(format string) Options { return Options{OptConvertTo: format} }

func BackgroundRemove() Options { return Options{OptBgRemove: 1} }
