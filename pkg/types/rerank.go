package types //nolint:revive // package name is intentional

import "fmt"

// RerankRequest represents a rerank request in the Cohere v2 wire shape,
// which is the canonical form for rerank across providers.
type RerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments *bool    `json:"return_documents,omitempty"`
	MaxTokensPerDoc int      `json:"max_tokens_per_doc,omitempty"`
}

// Validate checks the rerank request.
func (r *RerankRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.Query == "" {
		return fmt.Errorf("query is required")
	}
	if len(r.Documents) == 0 {
		return fmt.Errorf("documents are required")
	}
	return nil
}

// RerankResponse represents a rerank response.
type RerankResponse struct {
	ID      string         `json:"id"`
	Results []RerankResult `json:"results"`
	Meta    *RerankMeta    `json:"meta,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// RerankResult scores a single document.
type RerankResult struct {
	Index          int             `json:"index"`
	RelevanceScore float64         `json:"relevance_score"`
	Document       *RerankDocument `json:"document,omitempty"`
}

// RerankDocument echoes a document back when return_documents is set.
type RerankDocument struct {
	Text string `json:"text"`
}

// RerankMeta carries provider billing metadata.
type RerankMeta struct {
	BilledUnits *RerankBilledUnits `json:"billed_units,omitempty"`
	Tokens      *RerankTokens      `json:"tokens,omitempty"`
}

// RerankBilledUnits reports billed search units.
type RerankBilledUnits struct {
	SearchUnits int `json:"search_units,omitempty"`
	TotalTokens int `json:"total_tokens,omitempty"`
}

// RerankTokens reports token counts for rerank calls.
type RerankTokens struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}
