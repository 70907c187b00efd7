package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientConfig holds the connection settings for the remote streaming API.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client maintains one realtime websocket connection. Inbound events are
// parsed on a dedicated read loop and delivered on Events(); writes are
// serialized behind a mutex. Close is safe to call more than once.
type Client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan Event
}

// Dial connects and starts the read loop. The caller owns the returned
// client and must Close it.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("realtime api key is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = "wss://api.openai.com/v1/realtime"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	if strings.TrimSpace(cfg.Model) != "" {
		q := u.Query()
		q.Set("model", cfg.Model)
		u.RawQuery = q.Encode()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial realtime websocket: %w", err)
	}

	c := &Client{conn: conn, events: make(chan Event, 256)}
	go c.readLoop()
	return c, nil
}

// Events delivers parsed inbound events until the connection closes; the
// channel is closed afterwards.
func (c *Client) Events() <-chan Event { return c.events }

// SendSessionUpdate configures the remote session (instructions, audio
// formats, tools).
func (c *Client) SendSessionUpdate(_ context.Context, session SessionConfig) error {
	return c.writeJSON(sessionUpdateMessage{Type: "session.update", Session: session})
}

// SendBufferClear discards any uncommitted input audio on the remote side.
func (c *Client) SendBufferClear(_ context.Context) error {
	return c.writeJSON(bufferClearMessage{Type: "input_audio_buffer.clear"})
}

// SendInputAudio appends one base64 PCM16 chunk to the remote input buffer.
func (c *Client) SendInputAudio(_ context.Context, audioBase64 string) error {
	return c.writeJSON(inputAudioAppendMessage{Type: "input_audio_buffer.append", Audio: audioBase64})
}

// SendToolOutput returns a function call result to the model.
func (c *Client) SendToolOutput(_ context.Context, callID, output string) error {
	if strings.TrimSpace(callID) == "" {
		return fmt.Errorf("call_id is required for tool output")
	}
	return c.writeJSON(conversationItemCreateMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}

// SendResponseCreate requests a new spoken response. A non-empty language
// hint is appended as a speaking directive since the summary may be rendered
// in a different language than the interview itself.
func (c *Client) SendResponseCreate(_ context.Context, instructions, languageHint string) error {
	if hint := strings.TrimSpace(languageHint); hint != "" {
		instructions = strings.TrimSpace(instructions) + "\nSpeak in " + hint + "."
	}
	return c.writeJSON(responseCreateMessage{
		Type: "response.create",
		Response: responseParams{
			Modalities:   []string{"text", "audio"},
			Instructions: instructions,
		},
	})
}

func (c *Client) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *Client) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	defer func() {
		_ = c.Close()
		close(c.events)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		evt, err := ParseEvent(data)
		if err != nil {
			// Malformed frames are a protocol anomaly, not a reason to drop
			// the connection.
			continue
		}
		c.events <- evt
	}
}
