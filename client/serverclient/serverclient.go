// Package serverclient implements an HTTP client for the chunk server's
// API, satisfying the small Get/Upload/SearchByLabel interfaces that
// client/uploader, client/trustroot, and client/restorer each depend on.
package serverclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uplo-tech/errors"
)

// requestTimeout bounds every HTTP call; nothing here should block forever.
const requestTimeout = 60 * time.Second

// chunkMeta mirrors the server's Chunk-Meta header shape.
type chunkMeta struct {
	Label string `json:"label"`
}

// createdResponse mirrors the server's POST /v1/chunks response body.
type createdResponse struct {
	ChunkID string `json:"chunk_id"`
}

// Client talks to one chunk server over HTTPS.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for serverURL (must be https://), verifying the
// server's TLS certificate unless verifyTLSCert is false.
func New(serverURL string, verifyTLSCert bool) *Client {
	transport := &http.Transport{}
	if !verifyTLSCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: requestTimeout},
	}
}

// Upload stores body under label, returning the server-assigned chunk id.
func (c *Client) Upload(ctx context.Context, label string, body []byte) (string, error) {
	metaJSON, err := json.Marshal(chunkMeta{Label: label})
	if err != nil {
		return "", errors.AddContext(err, "could not marshal chunk meta")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chunks", bytes.NewReader(body))
	if err != nil {
		return "", errors.AddContext(err, "could not build upload request")
	}
	req.Header.Set("Chunk-Meta", string(metaJSON))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.AddContext(err, "could not reach chunk server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		// Returned undecorated (not wrapped with AddContext) so callers can
		// type-assert *StatusError to classify the failure before retrying.
		return "", statusError(resp)
	}

	var created createdResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.AddContext(err, "could not parse upload response")
	}
	return created.ChunkID, nil
}

// Get downloads the chunk at id, returning its body and label.
func (c *Client) Get(ctx context.Context, id string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chunks/"+id, nil)
	if err != nil {
		return nil, "", errors.AddContext(err, "could not build get request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", errors.AddContext(err, "could not reach chunk server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.AddContext(statusError(resp), "could not download chunk "+id)
	}

	var meta chunkMeta
	_ = json.Unmarshal([]byte(resp.Header.Get("Chunk-Meta")), &meta)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.AddContext(err, "could not read chunk body")
	}
	return body, meta.Label, nil
}

// SearchByLabel returns every known chunk id carrying label.
func (c *Client) SearchByLabel(ctx context.Context, label string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chunks?label="+url.QueryEscape(label), nil)
	if err != nil {
		return nil, errors.AddContext(err, "could not build search request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.AddContext(err, "could not reach chunk server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.AddContext(statusError(resp), "could not search by label")
	}

	var result map[string]chunkMeta
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.AddContext(err, "could not parse search response")
	}
	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the chunk at id.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/chunks/"+id, nil)
	if err != nil {
		return errors.AddContext(err, "could not build delete request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.AddContext(err, "could not reach chunk server")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.AddContext(statusError(resp), "could not delete chunk "+id)
	}
	return nil
}

// StatusError is returned whenever the server answers with an unexpected
// HTTP status code, carrying the code so callers can classify the failure
// (e.g. a 4xx is the client's fault and won't be fixed by retrying).
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return e.Status + ": " + e.Body
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

