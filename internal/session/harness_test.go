package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mdap "github.com/dshills/mipsdap/internal/dap"
	"github.com/dshills/mipsdap/internal/engine"
	"github.com/dshills/mipsdap/internal/engine/enginetest"
	"github.com/dshills/mipsdap/internal/stepper"
)

const waitTimeout = 3 * time.Second

// wireMessage is the envelope of any adapter message.
type wireMessage struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command"`
	Event      string          `json:"event"`
	RequestSeq int             `json:"request_seq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body"`
}

func (m wireMessage) isResponse(command string) bool {
	return m.Type == "response" && m.Command == command
}

func (m wireMessage) isEvent(name string) bool {
	return m.Type == "event" && m.Event == name
}

type outputBody struct {
	Category string `json:"category"`
	Output   string `json:"output"`
}

type stoppedBody struct {
	Reason   string `json:"reason"`
	ThreadID int    `json:"threadId"`
}

// testClient plays the DAP client over an in-memory pipe.
type testClient struct {
	t    *testing.T
	tr   *mdap.RawTransport
	seq  int
	msgs chan wireMessage
	done chan error
}

func testOptions(factory engine.Factory) Options {
	return Options{
		Factory: factory,
		Stepper: stepper.Config{IdleDelay: 2 * time.Millisecond},
	}
}

func startSession(t *testing.T, opts Options) *testClient {
	t.Helper()

	server, client := mdap.NewPipe()
	s := New(server, opts)
	ctx, cancel := context.WithCancel(context.Background())

	c := &testClient{
		t:    t,
		tr:   client,
		msgs: make(chan wireMessage, 1024),
		done: make(chan error, 1),
	}
	go func() { c.done <- s.Run(ctx) }()
	go c.readLoop()

	t.Cleanup(func() {
		cancel()
		client.Close()
		select {
		case <-c.done:
		case <-time.After(waitTimeout):
			t.Error("session did not stop")
		}
	})
	return c
}

func (c *testClient) readLoop() {
	defer close(c.msgs)
	for {
		m, err := c.tr.Receive()
		if err != nil {
			return
		}
		var w wireMessage
		if err := json.Unmarshal(m.Content, &w); err != nil {
			return
		}
		c.msgs <- w
	}
}

func (c *testClient) send(command string, args any) int {
	c.t.Helper()
	c.seq++
	msg := map[string]any{"seq": c.seq, "type": "request", "command": command}
	if args != nil {
		msg["arguments"] = args
	}
	content, err := json.Marshal(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.tr.Send(mdap.NewMessage(content)))
	return c.seq
}

func (c *testClient) sendRaw(content string) {
	c.t.Helper()
	require.NoError(c.t, c.tr.Send(mdap.NewMessage([]byte(content))))
}

func (c *testClient) next() wireMessage {
	c.t.Helper()
	select {
	case m, ok := <-c.msgs:
		require.True(c.t, ok, "connection closed")
		return m
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out waiting for a message")
		return wireMessage{}
	}
}

// until reads messages up to and including the first that matches, and
// returns the match and everything before it.
func (c *testClient) until(match func(wireMessage) bool) (wireMessage, []wireMessage) {
	c.t.Helper()
	var before []wireMessage
	for {
		m := c.next()
		if match(m) {
			return m, before
		}
		before = append(before, m)
	}
}

func (c *testClient) response(command string) (wireMessage, []wireMessage) {
	c.t.Helper()
	return c.until(func(m wireMessage) bool { return m.isResponse(command) })
}

func (c *testClient) event(name string) (wireMessage, []wireMessage) {
	c.t.Helper()
	return c.until(func(m wireMessage) bool { return m.isEvent(name) })
}

// request sends command and waits for its response.
func (c *testClient) request(command string, args any) (wireMessage, []wireMessage) {
	c.t.Helper()
	seq := c.send(command, args)
	m, before := c.response(command)
	require.Equal(c.t, seq, m.RequestSeq)
	return m, before
}

// sync round-trips a threads request and returns every message sent before
// its response.
func (c *testClient) sync() []wireMessage {
	c.t.Helper()
	_, before := c.request("threads", nil)
	return before
}

func (c *testClient) initialize() {
	c.t.Helper()
	resp, _ := c.request("initialize", map[string]any{"clientID": "test", "adapterID": "mips"})
	require.True(c.t, resp.Success)
	c.event("initialized")
}

// launch launches program and waits for the entry stop.
func (c *testClient) launch(program string) []wireMessage {
	c.t.Helper()
	c.send("launch", map[string]any{"program": program})
	resp, before := c.response("launch")
	require.True(c.t, resp.Success, resp.Message)
	stopped := c.next()
	require.True(c.t, stopped.isEvent("stopped"))
	require.Equal(c.t, stepper.ReasonEntry, decode[stoppedBody](c.t, stopped).Reason)
	return before
}

func decode[T any](t *testing.T, m wireMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Body, &v))
	return v
}

func outputs(t *testing.T, msgs []wireMessage) []outputBody {
	t.Helper()
	var out []outputBody
	for _, m := range msgs {
		if m.isEvent("output") {
			out = append(out, decode[outputBody](t, m))
		}
	}
	return out
}

func stops(t *testing.T, msgs []wireMessage) []string {
	t.Helper()
	var out []string
	for _, m := range msgs {
		if m.isEvent("stopped") {
			out = append(out, decode[stoppedBody](t, m).Reason)
		}
	}
	return out
}

func count(msgs []wireMessage, event string) int {
	n := 0
	for _, m := range msgs {
		if m.isEvent(event) {
			n++
		}
	}
	return n
}

// writeProgram writes source to a temporary file and returns its path.
func writeProgram(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.s")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

const demoSource = `# demo
main:
    li $t0, 1

    # comment
    addi $t0, $t0, 1
done:
    li $v0, 10
    syscall
`

func demoProgram() enginetest.Program {
	return enginetest.Program{
		{Line: 3, Text: "li $t0, 1"},
		{Line: 6, Text: "addi $t0, $t0, 1"},
		{Line: 8, Text: "li $v0, 10"},
		{Line: 9, Syscall: engine.SyscallExit, Text: "syscall"},
	}
}
