package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/osplink"
)

type CommandResult struct {
	RequestID string      `json:"request_id"`
	Command   string      `json:"command"`
	Status    int         `json:"status"`
	Output    interface{} `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type StatusResponse struct {
	Status            string   `json:"status"`
	Port              string   `json:"port"`
	Firmware          string   `json:"firmware,omitempty"`
	AvailableCommands []string `json:"available_commands"`
	Timestamp         string   `json:"timestamp"`
}

// Request is the JSON payload of a command topic. Fields a command does not
// use are ignored; an empty payload is fine for commands without arguments.
type Request struct {
	ID     string `json:"id,omitempty"`
	Addr   uint16 `json:"addr"`
	Chn    uint8  `json:"chn"`
	Red    uint16 `json:"red"`
	Green  uint16 `json:"green"`
	Blue   uint16 `json:"blue"`
	Format string `json:"format,omitempty"`
	Cmd    string `json:"cmd,omitempty"`
}

type handler func(cl *osplink.Client, req Request) (interface{}, error)

var handlers = map[string]handler{
	"version": func(cl *osplink.Client, req Request) (interface{}, error) {
		return cl.Version(req.Format)
	},
	"resetinit": func(cl *osplink.Client, req Request) (interface{}, error) {
		dirmux, last, err := cl.ResetInit()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"dirmux": dirmux, "last": last}, nil
	},
	"clrerror": func(cl *osplink.Client, req Request) (interface{}, error) {
		return nil, cl.ClearError(req.Addr)
	},
	"goactive": func(cl *osplink.Client, req Request) (interface{}, error) {
		return nil, cl.GoActive(req.Addr)
	},
	"setpwmchn": func(cl *osplink.Client, req Request) (interface{}, error) {
		return nil, cl.SetPwmChannel(req.Addr, req.Chn, req.Red, req.Green, req.Blue)
	},
	"reboot": func(cl *osplink.Client, req Request) (interface{}, error) {
		return nil, cl.BoardReboot()
	},
	"exec": func(cl *osplink.Client, req Request) (interface{}, error) {
		return cl.Conn().Do(req.Cmd)
	},
}

// Bridge maps MQTT command topics onto one OSPlink client. The client is
// used from paho's callback goroutines, so every command holds mu.
type Bridge struct {
	mu       sync.Mutex
	client   *osplink.Client
	topic    string
	port     string
	firmware string
	log      zerolog.Logger
	now      func() time.Time

	// Set after a timed out exchange whose resync also failed. A late reply
	// may still be buffered, so the next command resyncs first.
	desynced bool

	// Written by the health monitor only.
	health   HealthStatus
	lastSeen time.Time
}

func NewBridge(client *osplink.Client, topic, port string, log zerolog.Logger) *Bridge {
	return &Bridge{
		client: client,
		topic:  topic,
		port:   port,
		log:    log,
		now:    time.Now,
		health: HealthStatus{Status: "unknown"},
	}
}

// Topics are the subscriptions the bridge needs.
func (b *Bridge) Topics() []string {
	return []string{b.topic, b.topic + "/+"}
}

func availableCommands() []string {
	var names []string
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle processes one message and returns the topic and JSON body of the
// reply. ok is false for topics the bridge does not serve, including its own
// status topics.
func (b *Bridge) Handle(topic string, payload []byte) (replyTopic string, body []byte, ok bool) {
	var response interface{}
	switch {
	case topic == b.topic:
		response = StatusResponse{
			Status:            "listening",
			Port:              b.port,
			Firmware:          b.firmware,
			AvailableCommands: availableCommands(),
			Timestamp:         b.now().Format(time.RFC3339),
		}
		replyTopic = b.topic + "/status"
	case strings.HasPrefix(topic, b.topic+"/"):
		name := strings.TrimPrefix(topic, b.topic+"/")
		if name == "status" || strings.HasSuffix(name, "/status") {
			return "", nil, false
		}
		response = b.run(name, payload)
		replyTopic = topic + "/status"
	default:
		b.log.Debug().Str("topic", topic).Msg("ignoring message on unexpected topic")
		return "", nil, false
	}

	body, err := json.Marshal(response)
	if err != nil {
		b.log.Error().Err(err).Msg("marshaling result")
		return "", nil, false
	}
	return replyTopic, body, true
}

func (b *Bridge) run(name string, payload []byte) CommandResult {
	res := CommandResult{Command: name, Timestamp: b.now().Format(time.RFC3339)}

	var req Request
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			res.RequestID = uuid.NewString()
			res.Status = 1
			res.Error = fmt.Sprintf("invalid payload: %v", err)
			return res
		}
	}
	res.RequestID = req.ID
	if res.RequestID == "" {
		res.RequestID = uuid.NewString()
	}

	h, exists := handlers[name]
	if !exists {
		res.Status = 1
		res.Error = fmt.Sprintf("Error: Command '%s' not found. Available commands: %s",
			name, strings.Join(availableCommands(), ", "))
		b.log.Warn().Str("command", name).Msg("invalid command requested")
		return res
	}

	b.mu.Lock()
	out, err := b.exchange(func() (interface{}, error) { return h(b.client, req) })
	b.mu.Unlock()

	if err != nil {
		res.Status = 1
		res.Error = err.Error()
		b.log.Warn().Err(err).Str("command", name).Str("request", res.RequestID).Msg("command failed")
		return res
	}
	res.Output = out
	b.log.Info().Str("command", name).Str("request", res.RequestID).Msg("executed")
	return res
}

// exchange runs fn against the board and keeps requests and replies aligned
// across timeouts. b.mu must be held.
func (b *Bridge) exchange(fn func() (interface{}, error)) (interface{}, error) {
	if b.desynced {
		if err := b.client.Conn().Resync(); err != nil {
			return nil, fmt.Errorf("resync before command: %w", err)
		}
		b.desynced = false
		b.log.Info().Msg("resynchronized with board")
	}
	out, err := fn()
	if errors.Is(err, cmdint.ErrSyncTimeout) {
		if rerr := b.client.Conn().Resync(); rerr != nil {
			b.log.Debug().Err(rerr).Msg("resync after timeout failed, retrying before next command")
			b.desynced = true
		}
	}
	return out, err
}

// Close closes the client gracefully once no command is running.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client.Close(true)
}
