package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/protocol"
)

// RemoteError is an ERROR reply from the server.
type RemoteError struct {
	Code    string
	Message string
	Tick    uint64
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client is a synchronous planner client: each call sends one request and
// waits for its reply. Not safe for concurrent use.
type Client struct {
	conn    *websocket.Conn
	Welcome protocol.WelcomeMsg
}

func Dial(ctx context.Context, url, agentName string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn}
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: agentName}
	if err := c.roundTrip(hello, protocol.TypeWelcome, &c.Welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) StartEpisode(name string, l agent.Layout) (string, error) {
	req := protocol.EpisodeMsg{
		Type:            protocol.TypeEpisode,
		ProtocolVersion: protocol.Version,
		Name:            name,
		Width:           l.Width,
		Height:          l.Height,
		Walls:           l.Walls,
		Goals:           l.Goals,
	}
	var resp protocol.EpisodeStartedMsg
	if err := c.roundTrip(req, protocol.TypeEpisodeStarted, &resp); err != nil {
		return "", err
	}
	return resp.EpisodeID, nil
}

func (c *Client) Step(st agent.Step) (protocol.DecisionMsg, error) {
	req := protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		Tick:            st.Tick,
		Agent:           st.Agent,
		Goals:           st.Goals,
		Hazards:         st.Hazards,
		Legal:           st.Legal,
	}
	var resp protocol.DecisionMsg
	err := c.roundTrip(req, protocol.TypeDecision, &resp)
	return resp, err
}

func (c *Client) EndEpisode(reason string) (string, error) {
	req := protocol.EpisodeEndMsg{Type: protocol.TypeEpisodeEnd, ProtocolVersion: protocol.Version, Reason: reason}
	var resp protocol.EpisodeClosedMsg
	if err := c.roundTrip(req, protocol.TypeEpisodeClosed, &resp); err != nil {
		return "", err
	}
	return resp.EpisodeID, nil
}

func (c *Client) roundTrip(req any, want string, out any) error {
	if err := writeJSON(c.conn, req); err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case want:
		return json.Unmarshal(msg, out)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		return &RemoteError{Code: e.Code, Message: e.Message, Tick: e.Tick}
	}
	return fmt.Errorf("unexpected reply %q, want %q", base.Type, want)
}
