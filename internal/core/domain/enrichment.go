package domain

// ExternalGroup is a grouping proposal returned by the enrichment adapter.
// It is untrusted until re-validated.
type ExternalGroup struct {
	GroupID    string
	MessageIDs []string
	Context    string
	Confidence float64
}

// TextAnalysisRequest is the input of text enrichment.
type TextAnalysisRequest struct {
	Text       string
	Context    string
	Categories []Category
}

// TextAttributes are the attributes extracted from a group's descriptive text.
// Zero values mean the adapter did not provide the attribute.
type TextAttributes struct {
	Name         string
	Description  string
	Price        float64
	Currency     string
	Sizes        []string
	Material     string
	Gender       string
	Season       string
	CategoryID   string
	CategoryName string
}

// ImageAnalysisRequest is the input of per-image enrichment.
type ImageAnalysisRequest struct {
	Image       []byte
	ContentType string
	Description string
	Categories  []Category
}

// ImageAttributes are the attributes extracted from one product image.
type ImageAttributes struct {
	Color        string
	CategoryID   string
	CategoryName string
	Gender       string
	Season       string
}
