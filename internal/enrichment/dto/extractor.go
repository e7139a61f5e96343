package dto

// ExtractRequest is the request body for the NLP entity extraction service.
type ExtractRequest struct {
	Text     string   `json:"text"`
	Features []string `json:"features"`
}

// ExtractResponse is the NLP service response.
type ExtractResponse struct {
	Entities []ExtractedEntity `json:"entities"`
}

// ExtractedEntity is one candidate entity in an ExtractResponse.
type ExtractedEntity struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"`
	Relevance float64 `json:"relevance"`
}
