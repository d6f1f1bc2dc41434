// Command arenawatch follows a session's live events over the websocket
// endpoint and prints each participant's stream as it arrives. With -send
// it first posts a user message so the resulting turn can be watched.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"llm-arena/backend/conversation/models"
	pkgws "llm-arena/backend/pkg/ws"

	"github.com/gorilla/websocket"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "arena server base URL")
	token := flag.String("token", os.Getenv("ARENA_TOKEN"), "bearer token (defaults to $ARENA_TOKEN)")
	sessionID := flag.String("session", "", "session to follow")
	send := flag.String("send", "", "post this user message once subscribed")
	flag.Parse()

	if *sessionID == "" || *token == "" {
		fmt.Println("arenawatch usage:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	conn, err := dial(*baseURL, *sessionID, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	subscribed := make(chan struct{})
	go func() {
		defer close(done)
		watch(conn, subscribed, *send != "")
	}()

	if *send != "" {
		select {
		case <-subscribed:
		case <-time.After(5 * time.Second):
			fmt.Fprintln(os.Stderr, "no subscription ack from server")
			os.Exit(1)
		}
		if err := postMessage(*baseURL, *sessionID, *token, *send); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
	}

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		<-done
	}
}

func dial(base, sessionID, token string) (*websocket.Conn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/sessions/" + sessionID
	u.RawQuery = url.Values{"access_token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil && resp != nil {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(body)))
	}
	return conn, err
}

// watch prints frames until the connection closes, or, in single-turn mode,
// until every participant that streamed has reached a terminal event.
func watch(conn *websocket.Conn, subscribed chan<- struct{}, singleTurn bool) {
	open := map[string]bool{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
			}
			return
		}

		var frame struct {
			Type    string          `json:"type"`
			Topic   string          `json:"topic"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			fmt.Fprintf(os.Stderr, "bad frame: %v\n", err)
			continue
		}

		switch frame.Type {
		case pkgws.TypeSubscribed:
			fmt.Printf("following %s\n", frame.Topic)
			close(subscribed)
			continue
		case pkgws.TypeError:
			fmt.Fprintf(os.Stderr, "server error: %s\n", frame.Content)
			continue
		}

		var ev models.StreamEvent
		if err := json.Unmarshal(frame.Content, &ev); err != nil {
			continue
		}
		label := string(ev.Participant)
		if label == "" {
			label = "assistant"
		}
		switch ev.Kind {
		case models.EventChunk:
			open[ev.MessageID] = true
			fmt.Printf("[%s] %s\n", label, ev.Payload.Content)
		case models.EventComplete:
			delete(open, ev.MessageID)
			fmt.Printf("[%s] done (%s)\n", label, ev.Payload.FinishReason)
		case models.EventError:
			delete(open, ev.MessageID)
			fmt.Printf("[%s] failed: %s\n", label, ev.Payload.Error)
		}

		if singleTurn && ev.Terminal() && len(open) == 0 {
			return
		}
	}
}

func postMessage(base, sessionID, token, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	// The websocket carries the stream; the HTTP call only needs the final state
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/sessions/"+sessionID+"/messages?stream=false", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error sending request: %v\n", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "error response: %s, status: %d\n", strings.TrimSpace(string(b)), resp.StatusCode)
		}
	}()
	return nil
}
