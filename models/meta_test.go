package models

import (
	"encoding/json"
	"testing"
)

func TestFlexInt(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"number", `2`, 2, false},
		{"negative", `-202`, -202, false},
		{"quoted", `"1"`, 1, false},
		{"quoted spaces", `" 42 "`, 42, false},
		{"float", `12.0`, 12, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"not available", `"NA"`, 0, false},
		{"garbage", `"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexInt
			err := json.Unmarshal([]byte(tt.in), &f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && int(f) != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, f, tt.want)
			}
		})
	}
}

func TestResponseMeta_Unmarshal(t *testing.T) {
	raw := `{"Status":{"Code":"2","Message":"Success"},"OriginalURL":"https://img.example.com/a.png",` +
		`"LossyURL":"https://cdn.example.com/a.png","OriginalSize":"1000","LossySize":400,"Extra":{"x":1}}`

	var m ResponseMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.Code() != 2 || m.Message() != "Success" {
		t.Errorf("status = %d %q", m.Code(), m.Message())
	}
	if m.OriginalSize != 1000 || m.LossySize != 400 {
		t.Errorf("sizes = %d / %d", m.OriginalSize, m.LossySize)
	}
	if string(m.Raw) != raw {
		t.Errorf("Raw = %s, want the full payload", m.Raw)
	}

	var list []ResponseMeta
	if err := json.Unmarshal([]byte("["+raw+","+raw+"]"), &list); err != nil {
		t.Fatalf("Unmarshal(list) error = %v", err)
	}
	if len(list) != 2 || string(list[1].Raw) != raw {
		t.Errorf("list = %+v", list)
	}
}
