package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"attendancehub/internal/app"
	"attendancehub/internal/config"
	"attendancehub/pkg/types"
)

// StartApplication runs the whole service on an ephemeral port with a fresh
// sqlite database. It is stopped when the test ends.
func StartApplication(t *testing.T, mutate func(cfg *config.Config)) *app.Application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := application.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
		cancel()
	})
	return application
}

// Client is a websocket peer speaking the event envelope.
type Client struct {
	t    *testing.T
	conn *websocket.Conn
}

// Dial connects to the application and identifies as clientType/source.
func Dial(t *testing.T, addr, clientType, source string) *Client {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &Client{t: t, conn: conn}
	c.Send(types.EventIdentify, types.IdentifyPayload{ClientType: clientType, Source: source})
	return c
}

// Send writes one event.
func (c *Client) Send(event string, payload interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(types.NewMessage(event, payload)); err != nil {
		c.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Expect reads until event arrives and decodes its payload into v. Other
// events are skipped.
func (c *Client) Expect(event string, v interface{}) {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("Failed to set read deadline: %v", err)
		}
		var msg types.RawMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("Did not receive %s: %v", event, err)
		}
		if msg.Event != event {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(msg.Payload, v); err != nil {
				c.t.Fatalf("Failed to decode %s payload: %v", event, err)
			}
		}
		return
	}
}

// ExpectFeedback reads the feedback event.
func (c *Client) ExpectFeedback(event string) types.Feedback {
	c.t.Helper()
	var fb types.Feedback
	c.Expect(event, &fb)
	return fb
}

// PutJSON sends a PUT request with a JSON body and returns the status.
func PutJSON(t *testing.T, url string, body interface{}) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s failed: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// WaitForDevice polls the devices endpoint until location is connected.
func WaitForDevice(t *testing.T, addr, location string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/api/devices")
		if err == nil {
			var devices []struct {
				DeviceLocation string `json:"deviceLocation"`
				Connected      bool   `json:"connected"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&devices)
			resp.Body.Close()
			if decodeErr == nil {
				for _, d := range devices {
					if d.DeviceLocation == location && d.Connected {
						return
					}
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Device %s never came online", location)
}
