// Package api is an HTTP client for the inventory API that keeps the local
// session in step with what the server returns.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ayesh156/roxeleye-crud/internal/client/session"
)

// ErrNotAuthenticated is returned before any request is sent when a
// protected call is made without a live session.
var ErrNotAuthenticated = errors.New("not logged in")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a failure envelope returned by the server.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Message, e.Status, strings.Join(parts, "; "))
}

type envelope[T any] struct {
	Success bool         `json:"success"`
	Data    T            `json:"data"`
	Message string       `json:"message"`
	Error   string       `json:"error"`
	Errors  []FieldError `json:"errors"`
}

type AuthResult struct {
	User      *session.User `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

type Item struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	Image       *string   `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ItemPage struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"totalPages"`
}

// ItemInput carries the fields to create or change. Nil fields are not sent.
type ItemInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type ProfileInput struct {
	Name            *string `json:"name,omitempty"`
	CurrentPassword string  `json:"currentPassword,omitempty"`
	NewPassword     string  `json:"newPassword,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Synchronizer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func New(baseURL string, sess *session.Synchronizer, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: sess,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() *session.Synchronizer { return c.session }

// AssetURL resolves a stored upload reference to a fetchable URL.
func (c *Client) AssetURL(ref *string) string {
	if ref == nil || *ref == "" {
		return ""
	}
	return c.baseURL + "/" + strings.TrimLeft(*ref, "/")
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", jsonBody(in), false, &out); err != nil {
		return nil, err
	}
	return &out, c.session.Login(out.Token, out.User)
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := jsonBody(map[string]string{"email": email, "password": password})
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, false, &out); err != nil {
		return nil, err
	}
	return &out, c.session.Login(out.Token, out.User)
}

// Logout is local only; tokens are stateless on the server.
func (c *Client) Logout() error {
	return c.session.Logout()
}

func (c *Client) Profile(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil, true, &u); err != nil {
		return nil, err
	}
	return &u, c.session.UpdateUser(&u)
}

func (c *Client) UpdateProfile(ctx context.Context, in ProfileInput) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodPatch, "/api/auth/profile", jsonBody(in), true, &u); err != nil {
		return nil, err
	}
	return &u, c.session.UpdateUser(&u)
}

func (c *Client) UploadAvatar(ctx context.Context, filename string, r io.Reader) (*session.User, error) {
	body, err := multipartBody("avatar", filename, r, nil)
	if err != nil {
		return nil, err
	}
	var u session.User
	if err := c.do(ctx, http.MethodPost, "/api/auth/avatar", body, true, &u); err != nil {
		return nil, err
	}
	return &u, c.session.UpdateUser(&u)
}

func (c *Client) DeleteAvatar(ctx context.Context) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodDelete, "/api/auth/avatar", nil, true, &u); err != nil {
		return nil, err
	}
	return &u, c.session.UpdateUser(&u)
}

func (c *Client) ListUsers(ctx context.Context) ([]session.User, error) {
	var users []session.User
	err := c.do(ctx, http.MethodGet, "/api/auth/users", nil, true, &users)
	return users, err
}

func (c *Client) GetUser(ctx context.Context, id uint) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/users/"+idPath(id), nil, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateUserRole(ctx context.Context, id uint, role string) (*session.User, error) {
	var u session.User
	body := jsonBody(map[string]string{"role": role})
	if err := c.do(ctx, http.MethodPatch, "/api/auth/users/"+idPath(id)+"/role", body, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ToggleUserStatus(ctx context.Context, id uint) (*session.User, error) {
	var u session.User
	if err := c.do(ctx, http.MethodPatch, "/api/auth/users/"+idPath(id)+"/status", nil, true, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) DeleteUser(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, "/api/auth/users/"+idPath(id), nil, true, nil)
}

func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	err := c.do(ctx, http.MethodGet, "/api/items", nil, true, &items)
	return items, err
}

func (c *Client) ListItemsPage(ctx context.Context, page, pageSize int) (*ItemPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	var out ItemPage
	if err := c.do(ctx, http.MethodGet, "/api/items?"+q.Encode(), nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetItem(ctx context.Context, id uint) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodGet, "/api/items/"+idPath(id), nil, true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) CreateItem(ctx context.Context, in ItemInput) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodPost, "/api/items", jsonBody(in), true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItemWithImage sends the item as multipart form fields plus an image.
func (c *Client) CreateItemWithImage(ctx context.Context, in ItemInput, filename string, image io.Reader) (*Item, error) {
	body, err := multipartBody("image", filename, image, in.formValues())
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, http.MethodPost, "/api/items", body, true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UpdateItem(ctx context.Context, id uint, in ItemInput) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodPut, "/api/items/"+idPath(id), jsonBody(in), true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UpdateItemWithImage(ctx context.Context, id uint, in ItemInput, filename string, image io.Reader) (*Item, error) {
	body, err := multipartBody("image", filename, image, in.formValues())
	if err != nil {
		return nil, err
	}
	var item Item
	if err := c.do(ctx, http.MethodPut, "/api/items/"+idPath(id), body, true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem returns the server's message, which distinguishes a repeat
// delete from a first one.
func (c *Client) DeleteItem(ctx context.Context, id uint) (string, error) {
	var msg string
	err := c.doEnvelope(ctx, http.MethodDelete, "/api/items/"+idPath(id), nil, true, func(raw []byte) error {
		var env envelope[json.RawMessage]
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		msg = env.Message
		return nil
	})
	return msg, err
}

func (c *Client) DeleteItemImage(ctx context.Context, id uint) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodDelete, "/api/items/"+idPath(id)+"/image", nil, true, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (in ItemInput) formValues() map[string]string {
	v := map[string]string{}
	if in.Name != nil {
		v["name"] = *in.Name
	}
	if in.Description != nil {
		v["description"] = *in.Description
	}
	if in.Price != nil {
		v["price"] = strconv.FormatFloat(*in.Price, 'f', -1, 64)
	}
	if in.Quantity != nil {
		v["quantity"] = strconv.Itoa(*in.Quantity)
	}
	return v
}

type requestBody struct {
	contentType string
	reader      io.Reader
}

func jsonBody(v any) *requestBody {
	b, _ := json.Marshal(v)
	return &requestBody{contentType: "application/json", reader: bytes.NewReader(b)}
}

func multipartBody(field, filename string, file io.Reader, values map[string]string) (*requestBody, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	return &requestBody{contentType: mw.FormDataContentType(), reader: &buf}, nil
}

func idPath(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (c *Client) do(ctx context.Context, method, path string, body *requestBody, authed bool, out any) error {
	return c.doEnvelope(ctx, method, path, body, authed, func(raw []byte) error {
		if out == nil {
			return nil
		}
		env := envelope[json.RawMessage]{}
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	})
}

// doEnvelope sends the request and hands a success body to decode. A 401 on
// an authenticated call means the server no longer accepts the token, so the
// local session is dropped.
func (c *Client) doEnvelope(ctx context.Context, method, path string, body *requestBody, authed bool, decode func([]byte) error) error {
	var token string
	if authed {
		token = c.session.Token()
		if token == "" {
			return ErrNotAuthenticated
		}
	}

	var reader io.Reader
	if body != nil {
		reader = body.reader
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := decode(raw); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if authed && resp.StatusCode == http.StatusUnauthorized {
		_ = c.session.Logout()
	}
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		return &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &Error{Status: resp.StatusCode, Message: env.Error, Fields: env.Errors}
}
