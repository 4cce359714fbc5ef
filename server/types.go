package server

import "github.com/high-horse/fingerprint-server/matcher"

// Probe carries a fingerprint either as a base64 skeleton image (data URLs
// accepted) or as an already extracted feature vector.
type Probe struct {
	Image    string    `json:"image" validate:"required_without=Features"`
	Features []float64 `json:"features" validate:"required_without=Image"`
}

type CompareFingerprintRequest struct {
	ProbeImage     string `json:"probe_image" validate:"required"`
	CandidateImage string `json:"candidate_image" validate:"required"`
}

type CompareFingerprintResponse struct {
	Score      matcher.Score  `json:"score"`
	Match      bool           `json:"is_match"`
	Confidence string         `json:"confidence"`
	Details    CompareDetails `json:"details"`
	Elapsed    string         `json:"elapsed"`
}

type CompareDetails struct {
	ProbeMinutiae     int `json:"probe_minutiae"`
	CandidateMinutiae int `json:"candidate_minutiae"`
}

type EnrollRequest struct {
	Identity string `json:"identity" validate:"required,max=128"`
	Probe
}

type EnrollResponse struct {
	Identity   string    `json:"identity"`
	TemplateID string    `json:"template_id"`
	Templates  int       `json:"templates"`
	Minutiae   int       `json:"minutiae"`
	Features   []float64 `json:"features"`
}

type IdentifyResponse struct {
	Identity string        `json:"identity"`
	Score    matcher.Score `json:"score"`
	Matched  bool          `json:"matched"`
}

type VerifyRequest struct {
	Identity string `json:"identity" validate:"required,max=128"`
	Probe
}

type VerifyResponse struct {
	Identity string        `json:"identity"`
	Accepted bool          `json:"accepted"`
	Score    matcher.Score `json:"score"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
