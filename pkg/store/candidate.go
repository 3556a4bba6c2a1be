package store

// Boost records a post-fusion score adjustment applied to a candidate.
type Boost struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// Candidate is one retrievable unit: a scored chunk of a document.
// Raw scores come from the lexical/vector/rerank sources; normalized
// variants and the final fused score are filled in by the fusion pass.
type Candidate struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentID  string    `json:"document_id"`
	TenantID    string    `json:"tenant_id"`
	Text        string    `json:"text"`
	Ordinal     int       `json:"ordinal"`
	HeadingPath string    `json:"heading_path"`
	Embedding   []float32 `json:"-"`

	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	RerankScore  float64 `json:"rerank_score"`

	NormLexical float64 `json:"norm_lexical"`
	NormVector  float64 `json:"norm_vector"`
	NormRerank  float64 `json:"norm_rerank"`

	Boosts     []Boost `json:"boosts,omitempty"`
	FinalScore float64 `json:"final_score"`
	Rank       int     `json:"rank"`
}

// Citation is a (chunk, document) pair declared by the generator, valid
// only if the pair appears in the candidate set actually supplied to it.
type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Snippet    string `json:"snippet,omitempty"`
}
