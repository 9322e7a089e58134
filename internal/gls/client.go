package gls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// NoStatusYet is the sentinel latest text when the carrier returned a
// valid document with no recognizable events. Not an error.
const NoStatusYet = "No status yet"

const (
	defaultBaseURL = "https://gls-group.eu"
	defaultCaller  = "witt002"

	trackPathPrefix = "/app/service/open/rest/GROUP/en/rstt028/"

	maxErrorBody = 200
)

// History is one extraction result: the latest status plus the full
// rendered history, newest first.
type History struct {
	LatestText string
	LatestWhen string
	Entries    []string
}

// FetchError — non-2xx carrier response, with a truncated body for display.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += " :: " + e.Body
	}
	return msg
}

// DecodeError — the response body was not JSON by either the direct or the
// text-then-parse decode.
type DecodeError struct{}

func (e *DecodeError) Error() string { return "invalid JSON response" }

type Client struct {
	baseURL string
	caller  string
	httpc   *http.Client
	x       *Extractor

	now func() time.Time
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		caller:  defaultCaller,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		x:   NewExtractor(DefaultAliases()),
		now: time.Now,
	}
}

func (c *Client) WithCaller(caller string) *Client {
	if caller != "" {
		c.caller = caller
	}
	return c
}

func (c *Client) WithAliases(a Aliases) *Client {
	c.x = NewExtractor(a)
	return c
}

// TrackingURL builds the public REST status URL for one parcel. The millis
// parameter busts any intermediate cache; url.Values encodes postal-code
// spaces as '+', which is what the endpoint expects.
func (c *Client) TrackingURL(trackNumber, postalCode string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = trackPathPrefix + strings.TrimSpace(trackNumber)

	q := url.Values{}
	q.Set("caller", c.caller)
	q.Set("millis", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("postalCode", strings.TrimSpace(postalCode))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// FetchHistory performs one GET against the carrier and extracts the
// latest status plus the ordered history. A document with no event arrays
// yields the NoStatusYet sentinel, not an error.
func (c *Client) FetchHistory(ctx context.Context, trackNumber, postalCode string) (History, error) {
	target, err := c.TrackingURL(trackNumber, postalCode)
	if err != nil {
		return History{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return History{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return History{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return History{}, errors.Wrap(err, "read body")
	}

	if resp.StatusCode/100 != 2 {
		return History{}, &FetchError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}

	doc, err := decodeBody(body)
	if err != nil {
		return History{}, err
	}

	arrays := c.x.CandidateArrays(doc)
	if len(arrays) == 0 {
		return History{LatestText: NoStatusYet, Entries: []string{}}, nil
	}

	var events []Event
	for _, arr := range arrays {
		for _, el := range arr {
			if obj, ok := el.(map[string]any); ok {
				events = append(events, c.x.Normalize(obj))
			}
		}
	}
	// Newest first; stable so records with equal timestamps keep their
	// original relative order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TS > events[j].TS
	})

	h := History{LatestText: NoStatusYet, Entries: []string{}}
	if len(events) > 0 {
		h.LatestText = events[0].Text
		h.LatestWhen = events[0].When
	}
	for _, e := range events {
		if e.Text == "" || e.Text == NoStatusYet {
			continue
		}
		line := e.Text
		if e.When != "" {
			line = e.When + " – " + e.Text
		}
		h.Entries = append(h.Entries, line)
	}
	return h, nil
}

// decodeBody parses the body as JSON. A body that decodes to a bare string
// gets a second parse of that string, for proxies that double-encode the
// document.
func decodeBody(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &DecodeError{}
	}
	if txt, ok := doc.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(txt), &inner); err == nil {
			return inner, nil
		}
	}
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
