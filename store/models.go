package store

import "time"

// Event is a single persisted usage record. Immutable once accepted.
type Event struct {
	ID        string            `db:"id" json:"id"`
	TenantID  string            `db:"tenant_id" json:"tenant_id"`
	Resource  string            `db:"resource" json:"resource"`
	Feature   string            `db:"feature" json:"feature"`
	Quantity  int64             `db:"quantity" json:"quantity"`
	Timestamp time.Time         `db:"timestamp" json:"timestamp"`
	Metadata  map[string]string `db:"-" json:"metadata,omitempty"`
	MetadataJSON []byte         `db:"metadata" json:"-"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// EventInput is the caller-supplied payload for Create/CreateBatch.
// Timestamp is optional: when zero, the repository assigns the ingest
// instant.
type EventInput struct {
	TenantID  string
	Resource  string
	Feature   string
	Quantity  int64
	Timestamp time.Time
	Metadata  map[string]string
}

// Filters narrows a paginated event read.
type Filters struct {
	TenantID  string
	Resource  string
	Feature   string
	StartDate time.Time // zero means unbounded
	EndDate   time.Time // zero means unbounded
}

// Pagination is a 1-indexed page request, size in [1, 1000].
type Pagination struct {
	Page     int
	PageSize int
}

// Aggregate is a rollup row over one window and one (tenant, resource,
// feature) tuple.
type Aggregate struct {
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	Resource      string    `db:"resource" json:"resource"`
	Feature       string    `db:"feature" json:"feature"`
	WindowType    string    `db:"window_type" json:"window_type"`
	WindowStart   time.Time `db:"window_start" json:"window_start"`
	WindowEnd     time.Time `db:"window_end" json:"window_end"`
	TotalQuantity int64     `db:"total_quantity" json:"total_quantity"`
	EventCount    int64     `db:"event_count" json:"event_count"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// AggregateFilters narrows an aggregate query.
type AggregateFilters struct {
	WindowType string
	StartDate  time.Time
	EndDate    time.Time
	TenantID   string
	Resource   string
	Feature    string
}

// Summary is the sum over a set of aggregate rows.
type Summary struct {
	TotalQuantity int64 `json:"total_quantity"`
	TotalEvents   int64 `json:"total_events"`
}

// Quota is a configured upper bound on usage per window for a
// tenant/feature, optionally scoped to a single resource.
type Quota struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	Resource       *string    `db:"resource" json:"resource,omitempty"`
	Feature        string     `db:"feature" json:"feature"`
	LimitValue     int64      `db:"limit_value" json:"limit_value"`
	Period         string     `db:"period" json:"period"`
	AlertThreshold int        `db:"alert_threshold" json:"alert_threshold"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// QuotaInput is the caller-supplied payload for CreateQuota.
type QuotaInput struct {
	TenantID       string
	Resource       *string // nil means wildcard
	Feature        string
	LimitValue     int64
	Period         string
	AlertThreshold int
}

// Credential is the validation view of an API credential.
type Credential struct {
	KeyHash   string     `db:"key_hash"`
	IsActive  bool       `db:"is_active"`
	TenantID  *string    `db:"tenant_id"`
	ExpiresAt *time.Time `db:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
}
