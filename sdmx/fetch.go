// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdmx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// htmlMarkers identify HTML or XML error pages which the service returns in
// place of JSON. Such a response signals a structurally failed request, so it
// is never retried.
var htmlMarkers = []string{
	"<!DOCTYPE HTML PUBLIC",
	"<!DOCTYPE html",
	`<string xmlns="http://schemas.m`,
	"<html xmlns=",
}

func isErrorPage(body string) bool {
	for _, m := range htmlMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// snippet returns the first n characters of s, for error messages.
func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// get performs a single rate-limited GET and returns the raw body and the
// HTTP status code.
func (c *Client) get(ctx context.Context, uri string) (string, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, errors.Annotate(err, "rate limiter interrupted")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", 0, errors.Annotate(err, "failed to create request for %s", uri)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.transport.Do(req)
	if err != nil {
		return "", 0, errors.Annotate(err, "request failed: %s", uri)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.Annotate(err, "failed to read response body: %s", uri)
	}
	return string(body), resp.StatusCode, nil
}

// Fetch downloads and parses the JSON content of uri, making up to retries
// attempts in total. The rate limiter is checked before every attempt, and a
// malformed JSON body is retried after a 2^attempt * Config.RetryDelay
// sleep, which blocks the calling goroutine. A recognized HTML/XML error
// page and any transport error fail immediately without retry.
func (c *Client) Fetch(ctx context.Context, uri string, retries int) (any, error) {
	if retries < 1 {
		retries = 1
	}
	var parseErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * c.retryDelay
			logging.Debugf(ctx, "retrying %s in %s", uri, delay)
			time.Sleep(delay)
		}
		body, status, err := c.get(ctx, uri)
		if err != nil {
			return nil, err
		}
		if isErrorPage(body) {
			return nil, errors.Reason(
				"API request failed. URL: '%s', Status: '%d', Content: '%s'",
				uri, status, snippet(body, 30))
		}
		var v any
		if parseErr = json.Unmarshal([]byte(body), &v); parseErr == nil {
			return v, nil
		}
		logging.Warningf(ctx, "attempt %d: failed to parse response from %s: %s",
			attempt+1, uri, parseErr.Error())
	}
	return nil, errors.Annotate(parseErr,
		"failed to parse JSON from %s after %d attempts", uri, retries)
}
