package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/camroulette/signaling/backend/model"
	"github.com/camroulette/signaling/backend/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 9000
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	LifecycleService interface {
		Connect(ctx context.Context, connID, userID string) *model.Connection
		Disconnect(ctx context.Context, connID string)
		StartMatching(ctx context.Context, connID string, filters model.Filters) error
		EndChat(ctx context.Context, connID string) error
		NextChat(ctx context.Context, connID string) error
		HandleSignal(ctx context.Context, connID, kind string, payload json.RawMessage) error
		NotifyError(ctx context.Context, connID, code, message string)
	}

	Config struct {
		Logger           *zerolog.Logger
		LifecycleService LifecycleService
		ListenAddr       string
	}

	Server struct {
		svc LifecycleService
		ws  *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.LifecycleService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", srv.signal)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

// signal upgrades the channel and registers the connection. The user id
// is an opaque identifier supplied by the surrounding auth layer; an empty
// value means an anonymous participant.
func (srv *Server) signal(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()

	ctx, cancel := context.WithCancel(context.TODO()) // long-living connection context

	c := srv.svc.Connect(ctx, connID, userID)
	srv.logger.Debug().
		Str("connID", connID).
		Str("userID", userID).
		Msg("signaling channel open")

	go srv.handleWSConn(ctx, cancel, conn, c)
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	c *model.Connection,
) {
	wg := &sync.WaitGroup{}

	logger := srv.logger.With().
		Str("connID", c.ID).
		Str("userID", c.UserID).
		Logger()

	wg.Add(2)
	go func() {
		srv.webSocketReceiver(ctx, wg, conn, c.ID, &logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, c.TX, &logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, &logger)
	srv.svc.Disconnect(context.Background(), c.ID)
	logger.Debug().Msg("signaling channel closed")
}

// dispatch routes one inbound envelope to the lifecycle service and maps
// failures back to best-effort error events.
func (srv *Server) dispatch(ctx context.Context, connID string, env model.Envelope, logger *zerolog.Logger) {
	var err error
	switch env.Type {
	case model.EventStartMatching:
		var filters model.Filters
		if err = json.Unmarshal(env.Payload, &filters); err != nil {
			logger.Error().Err(err).Msg("malformed start-matching payload")
			return
		}
		err = srv.svc.StartMatching(ctx, connID, filters)
	case model.EventEndChat:
		err = srv.svc.EndChat(ctx, connID)
	case model.EventNextChat:
		err = srv.svc.NextChat(ctx, connID)
	case model.EventSDP, model.EventICECandidate, model.EventChatMessage:
		err = srv.svc.HandleSignal(ctx, connID, env.Type, env.Payload)
	default:
		logger.Debug().Str("type", env.Type).Msg("unknown event type, dropped")
		return
	}
	if err == nil {
		return
	}

	logger.Debug().Err(err).Str("type", env.Type).Msg("event rejected")
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		srv.svc.NotifyError(ctx, connID, model.CodeNoActiveSession, "no active session")
	case errors.Is(err, service.ErrNotFound):
		srv.svc.NotifyError(ctx, connID, model.CodeNotFound, "unknown connection")
	}
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Envelope,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case msg, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&msg)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing message")
				break SendLoop
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsW, wsErr := conn.NextWriter(websocket.TextMessage)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
				break SendLoop
			}
			_, wsErr = wsW.Write(b)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
			wsErr = wsW.Close()
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to close websocket writer")
				break SendLoop
			}
		}
	}
}

func (srv *Server) webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	connID string,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			var env model.Envelope
			if wsErr = json.Unmarshal(msg, &env); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to unmarshall incoming message")
			} else {
				srv.dispatch(ctx, connID, env, logger)
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
