package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/util"
)

// --- auth ---

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "login response has no token"}
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPut, "/auth/profile", upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// --- disposals ---

// CreateDisposal sends JSON for text predictions and multipart/form-data
// (field "image") when the payload carries the photo.
func (c *Client) CreateDisposal(ctx context.Context, p *disposal.Payload) (*Disposal, error) {
	if p == nil {
		return nil, fmt.Errorf("backend: create disposal: nil payload")
	}
	var body any = p
	if p.Multipart() {
		rb, err := multipartPayload(p)
		if err != nil {
			return nil, fmt.Errorf("backend: create disposal: %w", err)
		}
		body = rb
	}
	var d Disposal
	if err := c.do(ctx, http.MethodPost, "/disposals", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func multipartPayload(p *disposal.Payload) (rawBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := p.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return rawBody{}, err
		}
	}

	mime := util.PickMIME(p.Image.MIME, "", p.Image.Data)
	name := strings.TrimSpace(p.Image.Name)
	if name == "" {
		name = "medicine" + util.ExtForMIME(mime)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return rawBody{}, err
	}
	if _, err := part.Write(p.Image.Data); err != nil {
		return rawBody{}, err
	}
	if err := w.Close(); err != nil {
		return rawBody{}, err
	}
	return rawBody{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}

func (c *Client) ListDisposals(ctx context.Context) ([]Disposal, error) {
	raw, err := c.list(ctx, "/disposals")
	if err != nil {
		return nil, err
	}
	return decodeList[Disposal](raw)
}

func (c *Client) GetDisposal(ctx context.Context, id ID) (*Disposal, error) {
	var d Disposal
	if err := c.do(ctx, http.MethodGet, "/disposals/"+url.PathEscape(id.String()), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) UpdateDisposal(ctx context.Context, id ID, upd DisposalUpdate) (*Disposal, error) {
	var d Disposal
	if err := c.do(ctx, http.MethodPut, "/disposals/"+url.PathEscape(id.String()), upd, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDisposal(ctx context.Context, id ID) error {
	return c.do(ctx, http.MethodDelete, "/disposals/"+url.PathEscape(id.String()), nil, nil)
}

// --- pickups ---

func (c *Client) CreatePickup(ctx context.Context, req PickupRequest) (*Pickup, error) {
	var p Pickup
	if err := c.do(ctx, http.MethodPost, "/pickups", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPickups(ctx context.Context) ([]Pickup, error) {
	raw, err := c.list(ctx, "/pickups")
	if err != nil {
		return nil, err
	}
	return decodeList[Pickup](raw)
}

func (c *Client) GetPickup(ctx context.Context, id ID) (*Pickup, error) {
	var p Pickup
	if err := c.do(ctx, http.MethodGet, "/pickups/"+url.PathEscape(id.String()), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdatePickup(ctx context.Context, id ID, upd PickupUpdate) (*Pickup, error) {
	var p Pickup
	if err := c.do(ctx, http.MethodPut, "/pickups/"+url.PathEscape(id.String()), upd, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdatePickupStatus(ctx context.Context, id ID, status PickupStatus, notes string) (*Pickup, error) {
	body := map[string]string{"status": string(status)}
	if n := strings.TrimSpace(notes); n != "" {
		body["notes"] = n
	}
	var p Pickup
	if err := c.do(ctx, http.MethodPut, "/pickups/"+url.PathEscape(id.String())+"/status", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeletePickup(ctx context.Context, id ID) error {
	return c.do(ctx, http.MethodDelete, "/pickups/"+url.PathEscape(id.String()), nil, nil)
}

// --- CHWs ---

// ListCHWs lists community health workers, optionally filtered by sector.
func (c *Client) ListCHWs(ctx context.Context, sector string) ([]CHW, error) {
	path := "/chws"
	if s := strings.TrimSpace(sector); s != "" {
		path += "?sector=" + url.QueryEscape(s)
	}
	raw, err := c.list(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeList[CHW](raw)
}

// --- admin ---

func (c *Client) Stats(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) PendingUsers(ctx context.Context) ([]User, error) {
	raw, err := c.list(ctx, "/admin/users/pending")
	if err != nil {
		return nil, err
	}
	return decodeList[User](raw)
}

// Dashboard fetches stats and pending users concurrently. A failure of one
// call is recorded on the result and does not discard the other.
func (c *Client) Dashboard(ctx context.Context) Dashboard {
	var d Dashboard
	var g errgroup.Group
	g.Go(func() error {
		d.Stats, d.StatsErr = c.Stats(ctx)
		return nil
	})
	g.Go(func() error {
		d.PendingUsers, d.PendingErr = c.PendingUsers(ctx)
		return nil
	})
	_ = g.Wait()
	return d
}
