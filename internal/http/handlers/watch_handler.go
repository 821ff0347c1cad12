package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"productdesk/internal/log"
	"productdesk/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type watchFrame struct {
	Product     any    `json:"product"`
	Role        string `json:"role"`
	HeldBySelf  bool   `json:"held_by_self"`
	HolderEmail string `json:"holder_email,omitempty"`
	Error       string `json:"error,omitempty"`
}

// GET /api/v1/products/:id/watch
// Streams one server-sent event per poll. The stream owns a poller for
// the caller's session; when the client goes away the poller stops and
// releases any lock the session still holds.
func (h *ProductHandler) Watch(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "product.watch", err, nil)
	}
	if _, err := h.Catalog.Get(c.UserContext(), id); err != nil {
		return apiError(c, "product.watch", err, nil)
	}
	sess := sessionOf(c)
	users := h.Store.Users

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	log.Info(c, "product.watch.open", map[string]any{"product_id": id})

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		poller := services.NewPoller(h.Store, h.Guard, sess, id, h.PollInterval).WithEvents(h.Events)
		poller.OnUpdate(func(v services.View) {
			frame := watchFrame{Product: v.Product, Role: string(v.Role), HeldBySelf: v.HeldBySelf}
			if holder := v.Product.Holder(); holder != "" && !v.HeldBySelf {
				if u, err := users.ByID(ctx, holder); err == nil {
					frame.HolderEmail = u.Email
				}
			}
			if v.Err != nil {
				frame.Error = "refresh failed"
			}
			b, err := json.Marshal(frame)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: product\ndata: %s\n\n", b); err != nil {
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				// client disconnected
				cancel()
			}
		})
		_ = poller.Run(ctx)
		log.L().Info("product.watch.close", zap.String("product_id", id), zap.String("user_id", sess.UserID()))
	}))
	return nil
}
