package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kazz187/studyguild/pkg/cerr"
)

type GeminiClient struct {
	client  *genai.Client
	timeout time.Duration
}

var _ Client = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, timeout: timeout}, nil
}

func (c *GeminiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, d := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  toGenaiSchema(d.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.ResponseSchema)
	}

	contents := make([]*genai.Content, 0, len(req.Contents))
	for _, content := range req.Contents {
		contents = append(contents, toGenaiContent(content))
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, convertError(ctx, "generate content", err)
	}
	slog.DebugContext(ctx, "llm generate", "model", req.Model, "duration", time.Since(start))
	return fromGenaiResponse(resp), nil
}

func (c *GeminiClient) UploadFile(ctx context.Context, path string) (*File, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	f, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    MIMEType(path),
		DisplayName: filepath.Base(path),
	})
	if err != nil {
		return nil, convertError(ctx, "upload file", err)
	}
	return &File{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

func (c *GeminiClient) DeleteFile(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.client.Files.Delete(ctx, name, nil); err != nil {
		return convertError(ctx, "delete file", err)
	}
	return nil
}

var extraMIMETypes = map[string]string{
	".md":   "text/markdown",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MIMEType guesses the MIME type of a document from its extension.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extraMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

func convertError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return cerr.NewError(cerr.DeadlineExceeded, "llm request timed out", fmt.Errorf("%s: %w", op, err))
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	switch code {
	case http.StatusTooManyRequests:
		return cerr.NewError(cerr.ResourceExhausted, "llm rate limit exceeded", fmt.Errorf("%s: %w", op, err))
	case http.StatusBadRequest:
		return cerr.NewError(cerr.InvalidArgument, "llm rejected the request", fmt.Errorf("%s: %w", op, err))
	case http.StatusUnauthorized, http.StatusForbidden:
		return cerr.NewError(cerr.PermissionDenied, "llm credentials rejected", fmt.Errorf("%s: %w", op, err))
	case http.StatusNotFound:
		return cerr.NewError(cerr.NotFound, "llm resource not found", fmt.Errorf("%s: %w", op, err))
	default:
		return cerr.NewError(cerr.Unavailable, "llm service unavailable", fmt.Errorf("%s: %w", op, err))
	}
}

func toGenaiContent(c Content) *genai.Content {
	role := string(genai.RoleUser)
	if c.Role == RoleModel {
		role = string(genai.RoleModel)
	}
	// The Gemini API has no tool role; tool results travel as user turns
	// made only of function responses.
	out := &genai.Content{Role: role}
	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			out.Parts = append(out.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			}})
		case p.FunctionResponse != nil:
			out.Parts = append(out.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       p.FunctionResponse.ID,
				Name:     p.FunctionResponse.Name,
				Response: p.FunctionResponse.Response,
			}})
		case p.File != nil:
			out.Parts = append(out.Parts, genai.NewPartFromURI(p.File.URI, p.File.MIMEType))
		default:
			out.Parts = append(out.Parts, genai.NewPartFromText(p.Text))
		}
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{Content: Content{Role: RoleModel}}
	if resp == nil {
		return out
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = FinishReason(cand.FinishReason)
	if cand.Content == nil {
		return out
	}
	for _, p := range cand.Content.Parts {
		if p == nil {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			out.Content.Parts = append(out.Content.Parts, Part{FunctionCall: &FunctionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			}})
		case p.Text != "" && !p.Thought:
			out.Content.Parts = append(out.Content.Parts, Part{Text: p.Text})
		}
	}
	return out
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func toGenaiType(t Type) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeString:
		return genai.TypeString
	case TypeInteger:
		return genai.TypeInteger
	case TypeNumber:
		return genai.TypeNumber
	case TypeBoolean:
		return genai.TypeBoolean
	case TypeArray:
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
