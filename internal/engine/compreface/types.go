package compreface

import "fmt"

// APIError is a non-2xx answer from CompreFace.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("compreface: status %d: %s (code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("compreface: status %d", e.Status)
}

type subjectsResponse struct {
	Subjects []string `json:"subjects"`
}

type recognizeResponse struct {
	Result []recognizedFace `json:"result"`
}

type recognizedFace struct {
	Subjects []subjectMatch `json:"subjects"`
}

type subjectMatch struct {
	Subject    string  `json:"subject"`
	Similarity float64 `json:"similarity"`
}
