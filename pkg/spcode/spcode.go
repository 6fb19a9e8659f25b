// Package spcode classifies the per-item status codes returned by the
// optimization service.
package spcode

// Status is the classified meaning of a status code.
type Status int

const (
	Ready Status = iota
	Pending
	Auth
	Quota
	InvalidRequest
	Temporary
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Pending:
		return "pending"
	case Auth:
		return "auth"
	case Quota:
		return "quota"
	case InvalidRequest:
		return "invalid_request"
	case Temporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// IsError reports whether s is one of the error statuses.
func (s Status) IsError() bool {
	return s != Ready && s != Pending
}

// Classification is the result of Classify.
type Classification struct {
	Status    Status
	Retryable bool
}

const (
	CodePending = 1
	CodeReady   = 2
)

var invalidRequestCodes = map[int]struct{}{
	-102: {}, -103: {}, -104: {}, -105: {}, -106: {}, -107: {}, -108: {}, -109: {},
	-110: {}, -111: {}, -113: {}, -114: {}, -115: {}, -116: {}, -117: {},
	-201: {}, -202: {}, -203: {}, -205: {}, -206: {}, -207: {},
	-302: {}, -303: {}, -304: {}, -306: {},
}

// Classify maps a status code to its classification.
//
// Negative codes outside the documented sets are treated as temporary and
// retryable. That keeps unknown service errors from being reported as caller
// bugs, at the cost of possibly retrying a new permanent error.
func Classify(code int) Classification {
	switch code {
	case CodeReady:
		return Classification{Status: Ready}
	case CodePending:
		return Classification{Status: Pending}
	case -401, -402:
		return Classification{Status: Auth}
	case -403, -301:
		return Classification{Status: Quota}
	case -404, -500, -112, -305, -204:
		return Classification{Status: Temporary, Retryable: true}
	}
	if _, ok := invalidRequestCodes[code]; ok {
		return Classification{Status: InvalidRequest}
	}
	if code < 0 {
		return Classification{Status: Temporary, Retryable: true}
	}
	// Any other non-negative code needs no further action.
	return Classification{Status: Ready}
}

// Documented lists every status code the service documents, with its message.
var Documented = map[int]string{
	1:    "No errors, image scheduled for processing.",
	2:    "No errors, image processed, download URL available.",
	-102: "Invalid URL. Please make sure the URL is properly urlencoded and points to a valid image file.",
	-103: "Invalid website URL. Please make sure the URL is valid and points to an accessible website.",
	-104: "ID is missing for the call or is invalid.",
	-105: "URL is missing for the call.",
	-106: "URL is inaccessible from our server(s) due to access restrictions.",
	-107: "Too many URLs in a POST, maximum allowed has been exceeded.",
	-108: "Invalid user used for optimizing images from a particular domain.",
	-109: "Please use reducer.php endpoint for URL optimizations.",
	-110: "Upload error.",
	-111: "File too big.",
	-112: "Generic server error.",
	-113: "Too many inaccessible URLs from the same domain, please check accessibility and try again.",
	-114: "Please provide the local file paths of the optimized images.",
	-115: "Uploaded files are missing.",
	-116: "The number of URL parameters needs to be equal with the number of URLs.",
	-117: "Please pass the file_paths parameter as per the API specs.",
	-201: "Invalid image format.",
	-202: "Invalid image or unsupported image format.",
	-203: "Could not download file.",
	-204: "The file couldn't be optimized, possibly timedout.",
	-205: "The file's width and/or height is too big.",
	-206: "The PDF file is password protected and it cannot be optimized.",
	-207: "Invalid parameters for background removal.",
	-301: "The file is larger than the remaining quota.",
	-302: "The file is no longer available.",
	-303: "Internal API error: the file was not written on disk.",
	-304: "Internal API Error: could not create the user upload space.",
	-305: "Internal API error: Unknown, details usually in message.",
	-306: "Files need to be from a single domain per request.",
	-401: "Invalid API key. Please check that the API key is the one provided to you.",
	-402: "Wrong API Key.",
	-403: "Quota exceeded. You need to subscribe to a larger plan or to buy an additional one time package to increase your quota.",
	-404: "The maximum number of URLs in the optimization queue reached. Please try again in a minute.",
	-500: "API is in maintenance mode. Please come back later.",
}

// Describe returns the documented message for code, or "" if undocumented.
func Describe(code int) string {
	return Documented[code]
}
