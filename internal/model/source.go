package model

// SourceKind enumerates the three source shapes a config can declare. All
// three share one request/parse pipeline (see the source package's
// executor) — this is a value, not a type hierarchy.
type SourceKind string

const (
	SourceHTTP     SourceKind = "http"
	SourceMetadata SourceKind = "metadata"
	SourceOAuth2   SourceKind = "oauth2"
)

// HTTPMethod enumerates the request methods a source may use.
type HTTPMethod string

const (
	MethodGET  HTTPMethod = "GET"
	MethodPOST HTTPMethod = "POST"
)

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	ValueLiteral  ValueKind = "literal"
	ValueFromEnv  ValueKind = "from_env"
	ValueFromFile ValueKind = "from_file"
	ValueRef      ValueKind = "ref"
	ValueTemplate ValueKind = "template"
)

// Value is a tagged union of the five ways a header/body/form value may be
// supplied in a SourceSpec's request.
type Value struct {
	Kind ValueKind

	Literal string // ValueLiteral

	FromEnv string // ValueFromEnv: environment variable name

	FromFile string // ValueFromFile: file path, contents trimmed of trailing whitespace

	// ValueRef
	RefSource string
	RefToken  string
	RefPrefix string

	// ValueTemplate
	Template         string
	TemplateRequired bool
}

// RequestSpec describes the HTTP request a source issues to fetch tokens.
type RequestSpec struct {
	URL     string
	Method  HTTPMethod
	Headers map[string]Value
	Body    map[string]Value
	Form    map[string]Value
}

// TokenType enumerates how a parsed token's expiry is determined.
type TokenType string

const (
	TokenJWT       TokenType = "jwt"
	TokenPlainText TokenType = "plain_text"
)

// ExpirationSource enumerates where a plain_text token's expiry value comes
// from.
type ExpirationSource string

const (
	ExpirationSelf          ExpirationSource = "self"
	ExpirationJSONBodyField ExpirationSource = "json_body_field"
	ExpirationHeaderField   ExpirationSource = "header_field"
	ExpirationManual        ExpirationSource = "manual"
)

// ExpirationFormat enumerates how a raw expiry value is interpreted.
type ExpirationFormat string

const (
	ExpirationFormatSeconds ExpirationFormat = "seconds" // relative: now + value
	ExpirationFormatUnix    ExpirationFormat = "unix"    // absolute unix seconds
)

// ExpirationSpec describes how to derive a plain_text token's expiry.
type ExpirationSpec struct {
	Source           ExpirationSource
	Format           ExpirationFormat
	Pointer          string // body key or header name, for field-sourced expiry
	ManualTTLSeconds int64  // for Source == manual
}

// ParentKind enumerates where a token field's raw value is read from.
type ParentKind string

const (
	ParentBody   ParentKind = "body"
	ParentHeader ParentKind = "header"
)

// TokenFieldSpec declares one token to extract from a source's response.
type TokenFieldSpec struct {
	ID         string
	Parent     ParentKind
	Pointer    string // body key or header name
	TokenType  TokenType
	Expiration *ExpirationSpec // only set when TokenType == plain_text
}

// ParseSpec is the set of token fields to extract from one response.
type ParseSpec struct {
	Tokens []TokenFieldSpec
}

// SourceSpec is the declarative definition of one token source.
type SourceSpec struct {
	ID            string
	Kind          SourceKind
	Request       RequestSpec
	Parse         ParseSpec
	Inputs        []string
	SafetyMargin  *int64 // seconds; nil means "use global default"
}

// EffectiveSafetyMargin returns the source's safety margin if set, else the
// supplied global default.
func (s SourceSpec) EffectiveSafetyMargin(globalDefault int64) int64 {
	if s.SafetyMargin != nil {
		return *s.SafetyMargin
	}
	return globalDefault
}

// Node is a DAG-ordered descriptor for one source.
type Node struct {
	ID   string
	Spec SourceSpec
	Deps []string
}
