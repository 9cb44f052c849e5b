// Package client provides a client for the roomlog chat API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultRoom is the room used when none is given.
const DefaultRoom = "geral"

// Client is a roomlog API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new roomlog client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:4000"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Error is returned for non-2xx responses.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("roomlog error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Message represents a chat message.
type Message struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	Author     string `json:"author"`
	Text       string `json:"text"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"ts"`
	FileBucket string `json:"file_bucket,omitempty"`
	FileObject string `json:"file_object,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	FileMime   string `json:"file_mime,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Messages retrieves the latest messages of a room. limit <= 0 uses the
// server default; since > 0 drops older messages (Unix ms).
func (c *Client) Messages(room string, limit int, since int64) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if since > 0 {
		q.Set("since", strconv.FormatInt(since, 10))
	}
	path := "/rooms/" + url.PathEscape(room) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp []Message
	if err := c.doRequest("GET", path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Post posts a text message to a room.
func (c *Client) Post(room, author, text string) (*Message, error) {
	reqBody, err := json.Marshal(PostMessageRequest{Author: author, Text: text})
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := c.doRequest("POST", "/rooms/"+url.PathEscape(room)+"/messages", "application/json", bytes.NewReader(reqBody), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload sends the file at path to a room as an attachment.
func (c *Client) Upload(room, author, path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if author != "" {
		if err := mw.WriteField("author", author); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp Message
	if err := c.doRequest("POST", "/rooms/"+url.PathEscape(room)+"/upload", mw.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Room represents a room known to the server's room index.
type Room struct {
	Name         string    `json:"name"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
}

// RoomsResponse is the response from listing rooms.
type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
	Total int    `json:"total"`
}

// Rooms lists rooms, most recently active first.
func (c *Client) Rooms() (*RoomsResponse, error) {
	var resp RoomsResponse
	if err := c.doRequest("GET", "/rooms", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Instance  string                 `json:"instance,omitempty"`
	Storage   map[string]interface{} `json:"storage,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. An unhealthy server answers 503, which is
// returned as an *Error.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest("GET", "/health", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
