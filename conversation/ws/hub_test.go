package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/conversation/service"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	pkgws "llm-arena/backend/pkg/ws"
	sessionmodels "llm-arena/backend/session/models"
	sharedredis "llm-arena/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type knownSessions map[string]bool

func (k knownSessions) Get(_ context.Context, id string) (*sessionmodels.Session, error) {
	if !k[id] {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	return &sessionmodels.Session{ID: id}, nil
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger.Discard())
	go hub.Run(ctx)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	RegisterWebsocketRoutes(r, NewHandler(hub, knownSessions{"s1": true, "s2": true}, logger.Discard()), func(c *gin.Context) { c.Next() })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) pkgws.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env pkgws.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func chunk(sessionID, text string) models.StreamEvent {
	return models.StreamEvent{
		SessionID:   sessionID,
		MessageID:   "m1",
		Participant: models.ParticipantA,
		Kind:        models.EventChunk,
		Seq:         1,
		Payload:     models.EventPayload{Content: text},
	}
}

func TestClientReceivesSessionEvents(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s1")

	ack := readEnvelope(t, conn)
	assert.Equal(t, pkgws.TypeSubscribed, ack.Type)
	assert.Equal(t, 1, hub.Subscribers(service.Topic("s1")))

	require.NoError(t, hub.Publish(context.Background(), service.Topic("s2"), chunk("s2", "other")))
	require.NoError(t, hub.Publish(context.Background(), service.Topic("s1"), chunk("s1", "hello")))

	env := readEnvelope(t, conn)
	assert.Equal(t, "chunk", env.Type)
	assert.Equal(t, service.Topic("s1"), env.Topic)
	content, ok := env.Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s1", content["session_id"])
}

func TestSubscribeFrameAddsTopic(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s1")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(pkgws.Envelope{Type: pkgws.TypeSubscribe, Content: pkgws.SubscribeRequest{SessionID: "s2"}}))
	assert.Eventually(t, func() bool { return hub.Subscribers(service.Topic("s2")) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(pkgws.Envelope{Type: pkgws.TypeUnsubscribe, Content: pkgws.SubscribeRequest{SessionID: "s1"}}))
	assert.Eventually(t, func() bool { return hub.Subscribers(service.Topic("s1")) == 0 }, time.Second, 10*time.Millisecond)
}

func TestDisconnectUnsubscribes(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s1")
	readEnvelope(t, conn)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers(service.Topic("s1")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownSessionIsRejected(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRelayFromRedis(t *testing.T) {
	hub, srv := startHub(t)
	mr := miniredis.RunT(t)
	client := sharedredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.RelayFromRedis(ctx, client) }()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, time.Second, 10*time.Millisecond)

	conn := dial(t, srv, "s1")
	readEnvelope(t, conn)

	require.NoError(t, service.NewRedisSink(client).Publish(ctx, service.Topic("s1"), chunk("s1", "from another instance")))

	env := readEnvelope(t, conn)
	assert.Equal(t, "chunk", env.Type)
	content := env.Content.(map[string]any)
	payload := content["payload"].(map[string]any)
	assert.Equal(t, "from another instance", payload["content"])
}
