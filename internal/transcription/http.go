package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"meeting-bot/internal/pkg/retry"
)

const maxErrorBody = 2048

type request struct {
	method      string
	url         string
	header      map[string]string
	body        []byte
	contentType string
}

// requester issues provider calls through the retry policy and turns non-2xx answers into *StatusError.
type requester struct {
	provider string
	client   *http.Client
	policy   retry.Policy
	log      *log.Logger
}

func newRequester(provider string, client *http.Client, policy retry.Policy, logger *log.Logger) *requester {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	r := &requester{provider: provider, client: client, policy: policy, log: logger}
	prev := policy.OnRetry
	r.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if r.log != nil {
			r.log.Printf("[Transcription] provider=%s status=retry attempt=%d delay=%s err=%v", provider, attempt, delay, err)
		}
		if prev != nil {
			prev(attempt, err, delay)
		}
	}
	return r
}

func (r *requester) do(ctx context.Context, op string, req request) ([]byte, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) ([]byte, error) {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
		if err != nil {
			return nil, err
		}
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}
		for k, v := range req.header {
			httpReq.Header.Set(k, v)
		}

		resp, err := r.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(data) > maxErrorBody {
				data = data[:maxErrorBody]
			}
			return nil, &StatusError{Provider: r.provider, Op: op, Code: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
}

func (r *requester) doJSON(ctx context.Context, op string, req request, out any) error {
	data, err := r.do(ctx, op, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", r.provider, op, err)
	}
	return nil
}

func jsonBody(v any) ([]byte, error) {
	return json.Marshal(v)
}

type formField struct {
	name  string
	value string
}

// multipartBody builds a form with the given fields followed by one file part.
func multipartBody(fields []formField, fileField string, audio audioFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile(fileField, audio.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
