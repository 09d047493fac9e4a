package imagga

import "errors"

// Sentinel errors for Imagga API calls.
var (
	ErrUnauthorized = errors.New("imagga: unauthorized, check API_KEY and API_SECRET")
	ErrUnavailable  = errors.New("imagga: service unavailable")
	ErrRejected     = errors.New("imagga: request rejected")
)

type apiStatus struct {
	Text string `json:"text"`
	Type string `json:"type"` // "success" or "error"
}

type uploadResponse struct {
	Result struct {
		UploadID string `json:"upload_id"`
	} `json:"result"`
	Status apiStatus `json:"status"`
}

type tagsResponse struct {
	Result struct {
		Tags []rawTag `json:"tags"`
	} `json:"result"`
	Status apiStatus `json:"status"`
}

type rawTag struct {
	Confidence float64           `json:"confidence"`
	Tag        map[string]string `json:"tag"` // language -> label
}
