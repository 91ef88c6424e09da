package model

// SinkKind enumerates the three sink backends.
type SinkKind string

const (
	SinkFile SinkKind = "file"
	SinkUDS  SinkKind = "uds"
	SinkHTTP SinkKind = "http"
)

// ResponseFieldKind tags the variant held by a ResponseField.
type ResponseFieldKind string

const (
	ResponseFieldToken      ResponseFieldKind = "token"
	ResponseFieldExpiration ResponseFieldKind = "expiration"
	ResponseFieldLiteral    ResponseFieldKind = "literal"
)

// ResponseFormat enumerates how an Expiration response field is rendered.
type ResponseFormat string

const (
	ResponseFormatSeconds ResponseFormat = "seconds" // expiry - now, floored at 0
	ResponseFormatRFC3339 ResponseFormat = "rfc3339"
	ResponseFormatUnix    ResponseFormat = "unix"
)

// ResponseField is a tagged union describing how one HTTP sink output field
// (a header or a body field) is rendered.
type ResponseField struct {
	Kind ResponseFieldKind

	TokenID string // ResponseFieldToken, ResponseFieldExpiration

	Format ResponseFormat // ResponseFieldExpiration

	Literal string // ResponseFieldLiteral
}

// HTTPResponseSpec describes how an HTTP sink synthesizes its GET response.
type HTTPResponseSpec struct {
	Headers map[string]ResponseField
	Body    map[string]ResponseField
}

// SinkSpec is the declarative definition of one propagation target.
type SinkSpec struct {
	ID       string
	Kind     SinkKind
	SourceID string
	TokenID  string
	Path     string // file/uds: absolute filesystem path; http: route path
	Response *HTTPResponseSpec
}
