package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleTool marks turns that carry tool results back to the model.
	RoleTool Role = "tool"
)

type FinishReason string

const (
	FinishReasonUnspecified FinishReason = "FINISH_REASON_UNSPECIFIED"
	FinishReasonStop        FinishReason = "STOP"
	FinishReasonMaxTokens   FinishReason = "MAX_TOKENS"
	FinishReasonSafety      FinishReason = "SAFETY"
	FinishReasonRecitation  FinishReason = "RECITATION"
	FinishReasonOther       FinishReason = "OTHER"
)

// File is a document staged on the LLM service.
type File struct {
	Name     string
	URI      string
	MIMEType string
}

type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Part holds exactly one of its fields.
type Part struct {
	Text             string
	FunctionCall     *FunctionCall
	FunctionResponse *FunctionResponse
	File             *File
}

type Content struct {
	Role  Role
	Parts []Part
}

func UserText(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{Text: text}}}
}

func UserFile(f *File, text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{File: f}, {Text: text}}}
}

func ModelCall(call FunctionCall) Content {
	return Content{Role: RoleModel, Parts: []Part{{FunctionCall: &call}}}
}

func ToolResult(call FunctionCall, response map[string]any) Content {
	return Content{
		Role: RoleTool,
		Parts: []Part{{FunctionResponse: &FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: response,
		}}},
	}
}

type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
}

type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

type Request struct {
	Model             string
	SystemInstruction string
	Contents          []Content
	Tools             []FunctionDeclaration
	// ResponseSchema constrains the reply to JSON of this shape.
	ResponseSchema *Schema
}

type Response struct {
	Content      Content
	FinishReason FinishReason
	// BlockReason is set when the prompt itself was rejected.
	BlockReason string
}

func (r *Response) FunctionCalls() []FunctionCall {
	if r == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range r.Content.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Client is the LLM service. Implementations report rate limiting as a
// cerr.ResourceExhausted error.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	UploadFile(ctx context.Context, path string) (*File, error)
	DeleteFile(ctx context.Context, name string) error
}
