package tracker

import "time"

// Operation describes how a tracked entity was affected.
type Operation string

const (
	OpCreated Operation = "CREATED"
	OpUpdated Operation = "UPDATED"
	OpDeleted Operation = "DELETED"
)

// CascadeData is the tracker's flat change-set output for one transaction.
type CascadeData struct {
	Updated  []UpdatedEntity `json:"updated"`
	Deleted  []DeletedEntity `json:"deleted"`
	Metadata Metadata        `json:"metadata"`
}

// UpdatedEntity is one created or updated entity in wire form.
type UpdatedEntity struct {
	Typename  string         `json:"typename"`
	ID        string         `json:"id"`
	Operation Operation      `json:"operation"`
	Entity    map[string]any `json:"entity"`
}

// DeletedEntity records one deletion.
type DeletedEntity struct {
	Typename  string    `json:"typename"`
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

// Metadata describes how the cascade was gathered. AffectedCount is the
// pre-filter, pre-truncation count of tracked keys, so it can exceed the
// lengths of the built arrays. The builder fills the response-only fields;
// they stay zero on tracker output.
type Metadata struct {
	TransactionID       string        `json:"transactionId,omitempty"`
	Timestamp           time.Time     `json:"timestamp"`
	Depth               int           `json:"depth"`
	AffectedCount       int           `json:"affectedCount"`
	TrackingTime        time.Duration `json:"trackingTime,omitempty"`
	TruncatedUpdated    bool          `json:"truncatedUpdated,omitempty"`
	SerializationErrors int           `json:"serializationErrors,omitempty"`

	ConstructionTime       time.Duration `json:"constructionTime,omitempty"`
	TruncatedDeleted       bool          `json:"truncatedDeleted,omitempty"`
	TruncatedInvalidations bool          `json:"truncatedInvalidations,omitempty"`
	TruncatedSize          bool          `json:"truncatedSize,omitempty"`
	Streaming              bool          `json:"streaming,omitempty"`
}
