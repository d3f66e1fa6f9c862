// Package scenario provides a client for the Scenario image generation API.
//
// Scenario runs text-to-image jobs asynchronously: a submission returns a job
// ID, the job is polled until it reaches a terminal status, and the produced
// assets are resolved to downloadable URLs in a final step. This package
// implements the providers.ImageJobProvider interface over that lifecycle.
//
// API documentation: https://docs.scenario.com/
package scenario

// GenerationRequest is the request body for the txt2img endpoint.
type GenerationRequest struct {
	ModelID           string  `json:"modelId"`
	Prompt            string  `json:"prompt"`
	NumInferenceSteps int     `json:"numInferenceSteps"`
	NumSamples        int     `json:"numSamples"`
	Guidance          float64 `json:"guidance"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Scheduler         string  `json:"scheduler"`
	NegativePrompt    string  `json:"negativePrompt,omitempty"`
}

// GenerationResponse is the response from job submission. The job ID has
// moved between keys across API versions, so all known locations are mapped.
type GenerationResponse struct {
	Job   JobInfo `json:"job"`
	JobID string  `json:"jobId"`
	ID    string  `json:"id"`
}

// JobResponse wraps the job snapshot returned by the jobs endpoint.
type JobResponse struct {
	Job JobInfo `json:"job"`
}

// JobInfo is the provider-side state of a generation job.
type JobInfo struct {
	JobID    string      `json:"jobId"`
	Status   string      `json:"status"`
	Progress float64     `json:"progress"`
	Error    string      `json:"error"`
	Metadata JobMetadata `json:"metadata"`
}

// JobMetadata carries the identifiers of the assets a job produced.
type JobMetadata struct {
	AssetIDs []string `json:"assetIds"`
}

// AssetResponse is the response from the assets endpoint. Like the job ID,
// the download URL has moved between keys across API versions.
type AssetResponse struct {
	URL         string    `json:"url"`
	DownloadURL string    `json:"downloadUrl"`
	Asset       AssetInfo `json:"asset"`
}

// AssetInfo is the nested asset representation.
type AssetInfo struct {
	URL string `json:"url"`
}
