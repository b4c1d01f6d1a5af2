package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/arcflow-run/toolrun/internal/timeconfig"
)

// HTTPExecutor backs ToolTypeHTTP specs. It builds a request from the
// spec's URL/Method/Headers/Query plus the call's arguments, and returns
// a {status_code, body, headers} map as the result content, where body is
// the decoded JSON (or raw text, if the response isn't JSON).
type HTTPExecutor struct {
	Client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{Client: &http.Client{Timeout: timeconfig.HTTPTimeout()}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, spec *ToolSpec, args map[string]interface{}) (interface{}, error) {
	targetURL := spec.URL
	if v, ok := args["url"].(string); ok && v != "" {
		targetURL = v
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, NewToolError(CodeValidationError, fmt.Sprintf("invalid url: %v", err)).WithToolID(spec.ID)
	}
	q := parsed.Query()
	for k, v := range spec.Query {
		q.Set(k, v)
	}
	if qv, ok := args["query"].(map[string]interface{}); ok {
		for k, v := range qv {
			q.Set(k, fmt.Sprintf("%v", v))
		}
	}
	parsed.RawQuery = q.Encode()

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		payload, err := e.buildBody(spec, args)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return nil, NewToolError(CodeToolError, err.Error()).WithToolID(spec.ID).WithCause(err)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	if hv, ok := args["headers"].(map[string]interface{}); ok {
		for k, v := range hv {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError(spec, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewToolError(CodeToolError, err.Error()).WithToolID(spec.ID).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPStatusError(spec, resp.StatusCode, respBody)
	}

	var decodedBody interface{} = string(respBody)
	if contentType := resp.Header.Get("Content-Type"); strings.Contains(contentType, "application/json") {
		var decoded interface{}
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			decodedBody = decoded
		}
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        decodedBody,
		"headers":     headers,
	}, nil
}

func (e *HTTPExecutor) buildBody(spec *ToolSpec, args map[string]interface{}) ([]byte, error) {
	if spec.BodyTemplate != "" {
		rendered := spec.BodyTemplate
		for k, v := range args {
			rendered = strings.ReplaceAll(rendered, "{{"+k+"}}", fmt.Sprintf("%v", v))
		}
		return []byte(rendered), nil
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, NewToolError(CodeToolError, err.Error()).WithToolID(spec.ID).WithCause(err)
	}
	return payload, nil
}

func classifyHTTPTransportError(spec *ToolSpec, err error) error {
	return NewToolError(CodeUnavailable, err.Error()).WithToolID(spec.ID).WithCause(err).WithRetryable(true)
}

func classifyHTTPStatusError(spec *ToolSpec, status int, body []byte) error {
	code := CodeToolError
	retryable := false
	switch {
	case status == 429 || status >= 500:
		code = CodeUnavailable
		retryable = true
	case status == 401:
		code = CodeUnauthorized
	case status == 403:
		code = CodeInsufficientPermissions
	case status == 404:
		code = CodeToolNotFound
	}
	return NewToolError(code, fmt.Sprintf("http %d: %s", status, string(body))).
		WithToolID(spec.ID).WithRetryable(retryable)
}

// FunctionExecutor backs ToolTypeFunction specs, invoking the spec's own
// FunctionHandler. Panics are recovered and converted into a
// non-retryable CodeToolError rather than crashing the Engine, and a
// backend error returned by the handler is propagated unchanged: no
// executor silently downgrades a failure into a synthetic success.
type FunctionExecutor struct{}

func (FunctionExecutor) Execute(ctx context.Context, tctx *ToolContext, spec *ToolSpec, args map[string]interface{}) (result interface{}, err error) {
	if spec.Function == nil {
		return nil, NewToolError(CodeToolNotFound, "spec has no function handler attached").WithToolID(spec.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewToolError(CodeToolError, fmt.Sprintf("function handler panicked: %v", r)).
				WithToolID(spec.ID).WithRetryable(false)
		}
	}()
	return spec.Function(ctx, tctx, args)
}
