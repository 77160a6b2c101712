package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/edgekv"
	"github.com/unkn0wn-root/edgekv/internal/logging"
	"github.com/unkn0wn-root/edgekv/scheduler"
)

var errBadRequest = errors.New("bad request")

type handler struct {
	kv  *edgekv.KV
	log *logrus.Logger
}

type listKeyJSON struct {
	Name       string `json:"name"`
	Expiration int64  `json:"expiration,omitempty"`
	Metadata   any    `json:"metadata,omitempty"`
}

type listJSON struct {
	Keys         []listKeyJSON `json:"keys"`
	ListComplete bool          `json:"list_complete"`
	Cursor       string        `json:"cursor,omitempty"`
}

type putBody struct {
	Value    json.RawMessage `json:"value"`
	Metadata any             `json:"metadata"`
}

func (h *handler) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) get(c fiber.Ctx) error {
	key := c.Params("*")
	rep, err := edgekv.ParseRepresentation(c.Query("type"))
	if err != nil {
		return h.fail(c, key, err)
	}

	ctx, g := h.requestContext(c)
	e, err := h.kv.GetWithMetadata(ctx, key, rep)
	h.settle(c, key, g)
	if err != nil {
		return h.fail(c, key, err)
	}
	c.Set(HeaderCacheStatus, e.Status.String())
	h.log.WithFields(logging.RequestFields(c.Method(), key, e.Status.String(), RequestID(c))).Debug("kv_get")

	if c.Query("metadata") == "1" {
		v, err := jsonValue(e.Value)
		if err != nil {
			return h.fail(c, key, err)
		}
		return c.JSON(fiber.Map{"value": v, "metadata": e.Metadata})
	}
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			c.Set(HeaderMetadata, string(b))
		}
	}
	return writeValue(c, e.Value)
}

func (h *handler) put(c fiber.Ctx) error {
	key := c.Params("*")
	opts, err := putOptions(c)
	if err != nil {
		return h.fail(c, key, err)
	}
	value, meta, err := requestValue(c)
	if err != nil {
		return h.fail(c, key, err)
	}
	if meta != nil {
		opts.Metadata = meta
	}

	ctx, g := h.requestContext(c)
	err = h.kv.Put(ctx, key, value, opts)
	h.settle(c, key, g)
	if err != nil {
		return h.fail(c, key, err)
	}
	h.log.WithFields(logging.RequestFields(c.Method(), key, "", RequestID(c))).Debug("kv_put")
	return c.JSON(fiber.Map{"success": true})
}

func (h *handler) delete(c fiber.Ctx) error {
	key := c.Params("*")
	ctx, g := h.requestContext(c)
	err := h.kv.Delete(ctx, key)
	h.settle(c, key, g)
	if err != nil {
		return h.fail(c, key, err)
	}
	h.log.WithFields(logging.RequestFields(c.Method(), key, "", RequestID(c))).Debug("kv_delete")
	return c.JSON(fiber.Map{"success": true})
}

func (h *handler) list(c fiber.Ctx) error {
	q := edgekv.ListQuery{Prefix: c.Query("prefix"), Cursor: c.Query("cursor")}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return h.fail(c, q.Prefix, fmt.Errorf("%w: limit %q", edgekv.ErrInvalidListQuery, raw))
		}
		q.Limit = n
	}

	ctx, g := h.requestContext(c)
	res, err := h.kv.List(ctx, q)
	h.settle(c, q.Prefix, g)
	if err != nil {
		return h.fail(c, q.Prefix, err)
	}
	c.Set(HeaderCacheStatus, res.Status.String())

	out := listJSON{Keys: make([]listKeyJSON, len(res.Keys)), ListComplete: res.Complete, Cursor: res.Cursor}
	for i, k := range res.Keys {
		out.Keys[i] = listKeyJSON{Name: k.Name, Expiration: k.Expiration, Metadata: k.Metadata}
	}
	return c.JSON(out)
}

// requestContext installs a per-request task group when the caller asked to
// wait for background writes.
func (h *handler) requestContext(c fiber.Ctx) (context.Context, *scheduler.Group) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.Query("wait") != "1" {
		return ctx, nil
	}
	g := scheduler.NewGroup(ctx, 0)
	return scheduler.NewContext(ctx, g), g
}

func (h *handler) settle(c fiber.Ctx, key string, g *scheduler.Group) {
	if g == nil {
		return
	}
	if err := g.Wait(); err != nil {
		h.log.WithFields(logging.RequestFields(c.Method(), key, "", RequestID(c))).
			WithError(err).Warn("deferred_task_failed")
	}
}

func (h *handler) fail(c fiber.Ctx, key string, err error) error {
	status, code := classify(err)
	entry := h.log.WithFields(logging.RequestFields(c.Method(), key, "", RequestID(c))).WithError(err)
	if status >= fiber.StatusInternalServerError {
		entry.Warn("kv_request_failed")
	} else {
		entry.Debug("kv_request_rejected")
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, edgekv.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, edgekv.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_key"
	case errors.Is(err, edgekv.ErrInvalidRepresentation):
		return fiber.StatusBadRequest, "invalid_representation"
	case errors.Is(err, edgekv.ErrInvalidListQuery):
		return fiber.StatusBadRequest, "invalid_list_query"
	case errors.Is(err, errBadRequest):
		return fiber.StatusBadRequest, "invalid_request"
	case edgekv.IsOriginUnavailable(err):
		return fiber.StatusBadGateway, "origin_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.StatusGatewayTimeout, "timeout"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

func putOptions(c fiber.Ctx) (edgekv.PutOptions, error) {
	var opts edgekv.PutOptions
	if raw := c.Query("expiration"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			return opts, fmt.Errorf("%w: expiration %q", errBadRequest, raw)
		}
		opts.Expiration = time.Unix(secs, 0)
	}
	if raw := c.Query("expiration_ttl"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			return opts, fmt.Errorf("%w: expiration_ttl %q", errBadRequest, raw)
		}
		opts.ExpirationTTL = time.Duration(secs) * time.Second
	}
	if raw := c.Get(HeaderMetadata); raw != "" {
		var meta any
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return opts, fmt.Errorf("%w: %s header: %v", errBadRequest, HeaderMetadata, err)
		}
		opts.Metadata = meta
	}
	return opts, nil
}

// requestValue picks the representation from the content type. With
// metadata=1 a JSON body carries {value, metadata}.
func requestValue(c fiber.Ctx) (edgekv.Value, any, error) {
	body := bytes.Clone(c.Body())
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))

	if c.Query("metadata") == "1" {
		var pb putBody
		if err := json.Unmarshal(body, &pb); err != nil {
			return edgekv.Value{}, nil, fmt.Errorf("%w: body: %v", errBadRequest, err)
		}
		var s string
		if err := json.Unmarshal(pb.Value, &s); err == nil {
			return edgekv.TextValue(s), pb.Metadata, nil
		}
		var v any
		if err := json.Unmarshal(pb.Value, &v); err != nil {
			return edgekv.Value{}, nil, fmt.Errorf("%w: value: %v", errBadRequest, err)
		}
		return edgekv.StructuredValue(v), pb.Metadata, nil
	}

	switch {
	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return edgekv.Value{}, nil, fmt.Errorf("%w: body: %v", errBadRequest, err)
		}
		return edgekv.StructuredValue(v), nil, nil
	case strings.HasPrefix(ct, "text/"):
		return edgekv.TextValue(string(body)), nil, nil
	default:
		return edgekv.StreamValue(bytes.NewReader(body)), nil, nil
	}
}

func writeValue(c fiber.Ctx, v edgekv.Value) error {
	switch v.Representation() {
	case edgekv.Text:
		s, _ := v.Text()
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(s)
	case edgekv.Structured:
		s, _ := v.Structured()
		return c.JSON(s)
	case edgekv.Binary:
		b, _ := v.Bytes()
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(b)
	default:
		r, err := v.Stream()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.SendStream(r)
	}
}

func jsonValue(v edgekv.Value) (any, error) {
	switch v.Representation() {
	case edgekv.Text:
		return v.Text()
	case edgekv.Structured:
		return v.Structured()
	case edgekv.Binary:
		return v.Bytes()
	default:
		r, err := v.Stream()
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	}
}
