package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/pkg/version"
)

// baseURL returns the server root for addr, e.g. http://127.0.0.1:3100.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}

// apiGet issues a GET with the kbpulse user agent. Non-2xx responses are
// decoded into a structured error when the body carries one.
func apiGet(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, kberrors.ValidationError("invalid server URL", err).WithDetail("url", url)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeInternal, "server unreachable", err).
			WithDetail("url", url).
			WithSuggestion("Start the server with `kbpulse serve`")
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(raw, &body) == nil && body.Error.Code != "" {
		return nil, kberrors.New(body.Error.Code, body.Error.Message, nil)
	}
	return nil, kberrors.InternalError(fmt.Sprintf("server returned %s", resp.Status), nil).
		WithDetail("url", url)
}
