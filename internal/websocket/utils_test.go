package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Several goroutines share one connection in the stream handler: the event
// push loop and the read-loop replies. Writes must interleave cleanly.
func TestConnSerializesConcurrentWriters(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer raw.Close()
		conn := NewConn(raw)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if err := conn.WriteTyped(TickResponse{Event: EventTick, Remaining: i}); err != nil {
						return
					}
				}
			}()
		}
		wg.Wait()

		if err := conn.WriteTyped(PongResponse{Event: EventPong}); err != nil {
			t.Errorf("final write: %v", err)
		}
		close(serverDone)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// Every frame must decode cleanly; the pong marks the end of the burst.
	frames := 0
	for {
		var msg map[string]interface{}
		if err := client.ReadJSON(&msg); err != nil {
			t.Fatalf("read after %d frames: %v", frames, err)
		}
		frames++
		if msg["event"] == string(EventPong) {
			break
		}
	}
	if frames != 4*50+1 {
		t.Fatalf("frames = %d, want %d", frames, 4*50+1)
	}
	<-serverDone
}
