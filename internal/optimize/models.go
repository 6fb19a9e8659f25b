package optimize

import (
	"github.com/dtnitsch/pixbatch/internal/download"
)

// ItemOutput is the structured output for a single image.
type ItemOutput struct {
	Index         int    `json:"index" yaml:"index"`
	Input         string `json:"input" yaml:"input"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	State         string `json:"state" yaml:"state"`
	Code          int    `json:"code,omitempty" yaml:"code,omitempty"`
	Message       string `json:"message,omitempty" yaml:"message,omitempty"`
	BestURL       string `json:"best_url,omitempty" yaml:"best_url,omitempty"`
	OriginalSize  int    `json:"original_size,omitempty" yaml:"original_size,omitempty"`
	OptimizedSize int    `json:"optimized_size,omitempty" yaml:"optimized_size,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// FinalOutput is the structured output for the entire run.
type FinalOutput struct {
	Status    string           `json:"status" yaml:"status"`
	BatchID   string           `json:"batch_id" yaml:"batch_id"`
	Mode      string           `json:"mode" yaml:"mode"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Results   []ItemOutput     `json:"results" yaml:"results"`
	Downloads []download.Saved `json:"downloads,omitempty" yaml:"downloads,omitempty"`
	Stats     Stats            `json:"stats" yaml:"stats"`
}

// Stats provides summary statistics for the run.
type Stats struct {
	TotalItems       int     `json:"total_items" yaml:"total_items"`
	Ready            int     `json:"ready" yaml:"ready"`
	Failed           int     `json:"failed" yaml:"failed"`
	Pending          int     `json:"pending" yaml:"pending"`
	BytesSaved       int     `json:"bytes_saved,omitempty" yaml:"bytes_saved,omitempty"`
	TotalTimeSeconds float64 `json:"total_time_seconds" yaml:"total_time_seconds"`
}
