package storage

import "strings"

type (
	// ObjectMetadata is the subset of the storage object resource that is used
	ObjectMetadata struct {
		Name           string `json:"name"`
		Bucket         string `json:"bucket"`
		ContentType    string `json:"contentType"`
		Size           string `json:"size"`
		DownloadTokens string `json:"downloadTokens"`
	}
)

// Token returns the first download token, the field is a comma separated list
func (m *ObjectMetadata) Token() string {
	if m.DownloadTokens == "" {
		return ""
	}
	return strings.Split(m.DownloadTokens, ",")[0]
}
