package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable is the placeholder the service uses for absent output URLs.
const NotAvailable = "NA"

// FlexInt decodes from a JSON number or a numeric string.
// The service is inconsistent about quoting status codes and sizes.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == NotAvailable {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("flexint: %q is not numeric", s)
		}
		*f = FlexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		fl, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("flexint: %s: %w", n, err)
		}
		i = int64(fl)
	}
	*f = FlexInt(i)
	return nil
}

// Status is the per-item status block of a service response.
type Status struct {
	Code    FlexInt `json:"Code"`
	Message string  `json:"Message"`
}

// ResponseMeta is the raw response for one item. The reducer treats it as
// an opaque payload apart from Status and OriginalURL.
type ResponseMeta struct {
	Status          Status  `json:"Status"`
	OriginalURL     string  `json:"OriginalURL,omitempty"`
	LossyURL        string  `json:"LossyURL,omitempty"`
	LosslessURL     string  `json:"LosslessURL,omitempty"`
	WebPLossyURL    string  `json:"WebPLossyURL,omitempty"`
	WebPLosslessURL string  `json:"WebPLosslessURL,omitempty"`
	AVIFLossyURL    string  `json:"AVIFLossyURL,omitempty"`
	AVIFLosslessURL string  `json:"AVIFLosslessURL,omitempty"`
	OriginalSize    FlexInt `json:"OriginalSize,omitempty"`
	LossySize       FlexInt `json:"LossySize,omitempty"`
	LoselessSize    FlexInt `json:"LoselessSize,omitempty"`

	// Raw holds the full item payload as received.
	Raw json.RawMessage `json:"-"`
}

func (m *ResponseMeta) UnmarshalJSON(data []byte) error {
	type plain ResponseMeta
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ResponseMeta(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Code returns the item's status code.
func (m ResponseMeta) Code() int {
	return int(m.Status.Code)
}

// Message returns the item's status message.
func (m ResponseMeta) Message() string {
	return m.Status.Message
}
