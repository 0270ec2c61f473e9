// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kazz187/studyguild/internal/llm"
)

// Reply is one scripted answer to a Generate call.
type Reply struct {
	Response *llm.Response
	Err      error
}

type Client struct {
	mu sync.Mutex

	replies []Reply
	// Fallback answers calls once the script is exhausted. Without it such
	// calls fail.
	Fallback func(req *llm.Request) (*llm.Response, error)
	// UploadErr is returned by UploadFile when set.
	UploadErr error

	requests []*llm.Request
	uploaded []string
	deleted  []string
}

var _ llm.Client = (*Client)(nil)

func NewClient(replies ...Reply) *Client {
	return &Client{replies: replies}
}

func (c *Client) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		if c.Fallback != nil {
			return c.Fallback(req)
		}
		return nil, fmt.Errorf("llmtest: unexpected generate call #%d", len(c.requests))
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.Response, r.Err
}

func (c *Client) UploadFile(_ context.Context, path string) (*llm.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.UploadErr != nil {
		return nil, c.UploadErr
	}
	c.uploaded = append(c.uploaded, path)
	name := fmt.Sprintf("files/%d", len(c.uploaded))
	return &llm.File{
		Name:     name,
		URI:      "https://example.invalid/" + name,
		MIMEType: llm.MIMEType(filepath.Base(path)),
	}, nil
}

func (c *Client) DeleteFile(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleted = append(c.deleted, name)
	return nil
}

func (c *Client) Requests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.Request(nil), c.requests...)
}

func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *Client) Uploaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.uploaded...)
}

func (c *Client) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

// Remaining reports how many scripted replies were not consumed.
func (c *Client) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}

func Text(text string) Reply {
	return Reply{Response: &llm.Response{
		Content:      llm.Content{Role: llm.RoleModel, Parts: []llm.Part{{Text: text}}},
		FinishReason: llm.FinishReasonStop,
	}}
}

func Call(name string, args map[string]any) Reply {
	if args == nil {
		args = map[string]any{}
	}
	return Reply{Response: &llm.Response{
		Content: llm.Content{Role: llm.RoleModel, Parts: []llm.Part{{FunctionCall: &llm.FunctionCall{
			ID:   "call-" + name,
			Name: name,
			Args: args,
		}}}},
		FinishReason: llm.FinishReasonStop,
	}}
}

// Empty is a response with no content, finished for the given reason.
func Empty(reason llm.FinishReason) Reply {
	return Reply{Response: &llm.Response{
		Content:      llm.Content{Role: llm.RoleModel},
		FinishReason: reason,
	}}
}

func Error(err error) Reply {
	return Reply{Err: err}
}
