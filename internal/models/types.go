package models

// StoreRequest is the payload for POST /memories.
type StoreRequest struct {
	Content    string         `json:"content"`
	Importance int            `json:"importance"`
	Context    string         `json:"context"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
}

// StoreResponse is returned from POST /memories.
type StoreResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

// UpdateRequest is the payload for PATCH /memories/{id}. Nil fields are left
// untouched; a content change regenerates the attached embedding.
type UpdateRequest struct {
	Content    *string         `json:"content,omitempty"`
	Importance *int            `json:"importance,omitempty"`
	Context    *string         `json:"context,omitempty"`
	Source     *string         `json:"source,omitempty"`
	Metadata   *map[string]any `json:"metadata,omitempty"`
}

// QueryFilters is the filter vocabulary shared by MemoryStore.Query and
// paginated listing. Timestamp bounds are half-open: Since <= created_at < Until.
type QueryFilters struct {
	Source           string `json:"source,omitempty"`
	Context          string `json:"context,omitempty"`
	ContentSubstring string `json:"contentSubstring,omitempty"`
	Since            *int64 `json:"since,omitempty"`
	Until            *int64 `json:"until,omitempty"`
	MinImportance    *int   `json:"minImportance,omitempty"`
	MaxImportance    *int   `json:"maxImportance,omitempty"`
}

// RetrieveRequest is the payload for POST /memories/retrieve.
type RetrieveRequest struct {
	Query            string `json:"query"`
	Limit            int    `json:"limit"`
	ContextTimeframe string `json:"contextTimeframe,omitempty"`
	EnhanceQuery     *bool  `json:"enhanceQuery,omitempty"`
}

// RetrieveResponse is returned from POST /memories/retrieve.
type RetrieveResponse struct {
	QueryID  string         `json:"queryId"`
	Query    string         `json:"query"`
	Stage    string         `json:"stage"`
	Memories []RankedMemory `json:"memories"`
}

// FeedbackRequest is the payload for POST /feedback.
type FeedbackRequest struct {
	QueryID   string `json:"queryId"`
	MemoryID  string `json:"memoryId"`
	Relevance int    `json:"relevance"`
	Accuracy  int    `json:"accuracy"`
	Comment   string `json:"comment,omitempty"`
}

// ListRequest holds parsed parameters for GET /memories.
type ListRequest struct {
	Filters          QueryFilters `json:"filters"`
	Page             int          `json:"page"`
	PageSize         int          `json:"pageSize"`
	SortByImportance bool         `json:"sortByImportance"`
	IncludeTotal     bool         `json:"includeTotal"`
}

// Pagination holds page metadata. Total and TotalPages are only present when
// the caller asked for them; HasNextPage is always populated, using a
// full-page proxy when the total is unknown.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	Total       *int `json:"total,omitempty"`
	TotalPages  *int `json:"totalPages,omitempty"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// ListResponse is returned from GET /memories.
type ListResponse struct {
	Memories   []*Memory  `json:"memories"`
	Pagination Pagination `json:"pagination"`
}

// BatchItem is one memory in a bulk store request.
type BatchItem struct {
	Content    string         `json:"content"`
	Importance int            `json:"importance"`
	Context    string         `json:"context"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
}

// BatchUpdateItem pairs a memory id with the partial fields to apply.
type BatchUpdateItem struct {
	ID     string        `json:"id"`
	Update UpdateRequest `json:"update"`
}

// BatchError reports the failure of a single item by its input index.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult is the outcome of a bulk operation. Every failed item appears
// in Errors with its original index; items are never silently dropped.
type BatchResult struct {
	Successful    int          `json:"successful"`
	Failed        int          `json:"failed"`
	SuccessfulIDs []string     `json:"successfulIds,omitempty"`
	Errors        []BatchError `json:"errors,omitempty"`
	TimeTakenMs   int64        `json:"timeTakenMs"`
}

// FactRequest is the payload for POST /facts.
type FactRequest struct {
	Fact       string         `json:"fact"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// ConnectionRequest is the payload for POST /connections. Strength is a
// pointer so an explicit 0 is distinguishable from unset (which defaults
// to 0.5).
type ConnectionRequest struct {
	SourceID     string         `json:"sourceId"`
	TargetID     string         `json:"targetId"`
	Relationship string         `json:"relationship"`
	Strength     *float64       `json:"strength,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status      string       `json:"status"`
	Embedder    ServiceCheck `json:"embedder"`
	DB          ServiceCheck `json:"db"`
	MemoryCount int          `json:"memoryCount"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
