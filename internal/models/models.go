// Package models defines the database entity types.
package models

// Backend kinds a data request can target. The kind selects which
// connector executes the resolved request.
const (
	KindHTTP       = "http"
	KindRealtimeDB = "realtimedb"
	KindDocument   = "document"
	KindSQL        = "sql"
)

// Variable binding value types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
)

// ValidKind reports whether kind names a known backend kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindHTTP, KindRealtimeDB, KindDocument, KindSQL:
		return true
	}
	return false
}

// ValidBindingType reports whether t names a known binding type.
func ValidBindingType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// DataRequest is the addressable unit of work: a templated query or
// path against one backend, plus its transform configuration.
type DataRequest struct {
	ID            string
	ConnectionID  string
	Kind          string
	Template      string
	Configuration map[string]any
	Transform     *TransformSpec
	CreatedAt     int64
	UpdatedAt     int64
}

// VariableBinding declares the contract for one {{name}} placeholder.
type VariableBinding struct {
	ID            int64
	DataRequestID string
	Name          string
	Type          string
	DefaultValue  string
	Required      bool
	Value         string
	CreatedAt     int64
	UpdatedAt     int64
}

// CacheEntry is a stored response keyed by the fingerprint of the
// resolved request that produced it.
type CacheEntry struct {
	Fingerprint   string
	DataRequestID string
	Response      []byte
	StoredAt      int64
}

// Connection is a stored connection descriptor. The engine passes it
// through to the connector unmodified.
type Connection struct {
	ID        string
	Name      string
	Kind      string
	Host      string
	Username  *string
	Password  *string
	Options   map[string]string
	CreatedAt int64
}

// SavedQuery is a reusable query snippet saved from the authoring surface.
type SavedQuery struct {
	ID        string
	Type      string
	Summary   string
	Query     string
	CreatedAt int64
	UpdatedAt int64
}

// TransformSpec configures the post-fetch transform pipeline.
type TransformSpec struct {
	Enabled bool            `json:"enabled"`
	Steps   []TransformStep `json:"steps,omitempty"`
}

// TransformStep is one declarative reshaping operation. Type selects
// the variant; the remaining fields parameterize it.
type TransformStep struct {
	Type    string            `json:"type"` // pick|rename|filter|flatten
	Fields  []string          `json:"fields,omitempty"`
	Mapping map[string]string `json:"mapping,omitempty"`
	Field   string            `json:"field,omitempty"`
	Op      string            `json:"op,omitempty"` // eq|neq|gt|lt|contains
	Value   any               `json:"value,omitempty"`
}
