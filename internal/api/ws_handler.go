package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/auth"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/errcode"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// WsHandler upgrades connections and streams per-user notifications
// (achievement earned, streak extended) out of Redis pub/sub. Browsers
// cannot set an Authorization header on a websocket, so the first frame
// the client sends must be {"type":"auth","token":"<access token>"}.
type WsHandler struct {
	redisClient    *redis.Client
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.originAllowed}
	return h
}

// originAllowed accepts configured origins, or same-host when no list
// is configured.
func (h *WsHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

type wsClientFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsAuthAck struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// HandleConnection upgrades the request, waits for the auth frame, then
// pumps the trainee's notify channel until either side goes away.
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.awaitAuth(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))
	log.Info("websocket authenticated")

	// Keep reading so client close frames and network errors surface;
	// clients send nothing after the auth frame.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	if err := h.pumpNotifications(c, conn, userID, readErr); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// awaitAuth reads the first frame and validates the access token in it.
func (h *WsHandler) awaitAuth(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth frame: %w", err)
	}

	var frame wsClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth frame: %w", err)
	}
	if frame.Type != "auth" || frame.Token == "" {
		h.closeWith(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, errors.New("first frame is not an auth frame")
	}

	claims, err := h.authService.ValidateToken(frame.Token)
	if err != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != "access" {
		h.closeWith(conn, websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("token type %q not accepted", claims.TokenType)
	}

	ack, _ := json.Marshal(wsAuthAck{Type: "auth.ok", Code: errcode.OK})
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		return 0, fmt.Errorf("write auth ack: %w", err)
	}
	return claims.UserID, nil
}

// pumpNotifications forwards pub/sub payloads to the socket and pings
// on an interval so half-open connections get culled.
func (h *WsHandler) pumpNotifications(c *gin.Context, conn *websocket.Conn, userID uint, readErr <-chan error) error {
	ctx := c.Request.Context()
	channel := worker.UserNotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case msg, ok := <-messages:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (h *WsHandler) closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
