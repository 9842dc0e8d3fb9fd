package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

const defaultHTTPTimeout = 30 * time.Second

// newHTTP performs a request and stores the response body and status.
// A mapping body is sent as JSON.
func newHTTP(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	urlTpl, err := a.Template("url", "")
	if err != nil {
		return nil, err
	}
	method, err := a.String("method", http.MethodGet)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(method)
	headers, err := a.Map("headers")
	if err != nil {
		return nil, err
	}
	timeout, err := a.Duration("timeout", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	responseKey, err := a.String("response_key", "response")
	if err != nil {
		return nil, err
	}
	statusKey, err := a.String("status_key", "status")
	if err != nil {
		return nil, err
	}
	decode, err := a.Bool("decode_json", false)
	if err != nil {
		return nil, err
	}
	failNon2xx, err := a.Bool("fail_non2xx", false)
	if err != nil {
		return nil, err
	}
	body := def.With["body"]

	return workflow.Func(describe(def, method+" "+urlTpl.String()), func(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
		snap := c.Snapshot()
		url, err := urlTpl.render(snap)
		if err != nil {
			return fmt.Errorf("http: url template: %w", err)
		}

		var reader io.Reader
		contentType := ""
		if body != nil {
			rendered, err := renderValue(body, snap)
			if err != nil {
				return fmt.Errorf("http: body template: %w", err)
			}
			if s, ok := rendered.(string); ok {
				reader = strings.NewReader(s)
			} else {
				b, err := json.Marshal(rendered)
				if err != nil {
					return fmt.Errorf("http: encode body: %w", err)
				}
				reader = strings.NewReader(string(b))
				contentType = "application/json"
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
		if err != nil {
			return fmt.Errorf("http: build request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for _, name := range slices.Sorted(maps.Keys(headers)) {
			v, err := renderValue(headers[name], snap)
			if err != nil {
				return fmt.Errorf("http: header %s: %w", name, err)
			}
			req.Header.Set(name, fmt.Sprint(v))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("http: request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("http: read response body: %w", err)
		}

		c.Set(statusKey, resp.StatusCode)
		if decode && len(data) > 0 {
			var decoded any
			if err := json.Unmarshal(data, &decoded); err != nil {
				return fmt.Errorf("http: response is not JSON: %w", err)
			}
			c.Set(responseKey, decoded)
		} else {
			c.Set(responseKey, string(data))
		}

		if failNon2xx && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			return ctl.FailStep(fmt.Sprintf("%s %s returned status %d", method, url, resp.StatusCode))
		}
		return nil
	}), nil
}
