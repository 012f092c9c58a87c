package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/John-MustangGT/osplink/cmdint"
	"github.com/John-MustangGT/osplink/internal/cli"
	"github.com/John-MustangGT/osplink/internal/config"
	"github.com/John-MustangGT/osplink/osplink"
	"github.com/John-MustangGT/osplink/portprobe"
)

func main() {
	var flags cli.Flags
	flags.Register(flag.CommandLine)
	brokerURL := flag.String("L", "", "MQTT broker URL with base topic (e.g., mqtt://localhost:1883/osplink)")
	httpAddr := flag.String("http", "", "HTTP listen address for the live transcript (default from config, :8080)")
	username := flag.String("u", "", "MQTT username (optional)")
	password := flag.String("p", "", "MQTT password (optional)")
	clientID := flag.String("client-id", "", "MQTT client ID (optional, will be generated if not provided)")
	healthInterval := flag.Duration("health", 30*time.Second, "interval of board health checks (0 disables)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -L <broker_url/topic> [-port <device> | -sim] [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nTopics:\n")
		fmt.Fprintf(os.Stderr, "  osplink            -> returns status with available commands\n")
		fmt.Fprintf(os.Stderr, "  osplink/goactive   -> runs goactive, payload {\"addr\":1}\n")
		fmt.Fprintf(os.Stderr, "  osplink/<cmd>/status receives the JSON result\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	hub := NewHub(100, zerolog.Nop())
	flags.Tee = hub
	env, err := flags.Setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	log := env.Log
	hub.log = log.With().Str("component", "ws").Logger()

	cfg := env.Config
	if err := applyMQTTFlags(&cfg.MQTT, *brokerURL, *username, *password, *clientID); err != nil {
		log.Fatal().Err(err).Msg("Error parsing broker URL")
	}
	if cfg.MQTT.Broker == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	port, err := env.ResolvePort(func() portprobe.Session {
		return osplink.New(cmdint.New(env.ScanOptions(flags.Sim)...))
	})
	if err != nil {
		log.Fatal().Err(err).Msg("no OSPlink board")
	}
	client := osplink.New(cmdint.New(env.ConnOptions(flags.Sim)...), osplink.WithLogger(log))
	if err := client.Open(port); err != nil {
		log.Fatal().Err(err).Str("port", port).Msg("open failed")
	}

	bridge := NewBridge(client, cfg.MQTT.Topic, port, log.With().Str("component", "bridge").Logger())
	if v, err := client.Version(osplink.DefaultVersionFormat); err == nil {
		bridge.firmware = v
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(ctx, cfg.HTTP.Addr, hub, bridge) })
	connected := make(chan mqtt.Client, 1)
	g.Go(func() error { return runMQTT(ctx, cfg.MQTT, bridge, connected) })
	if *healthInterval > 0 {
		g.Go(func() error {
			var mc mqtt.Client
			select {
			case mc = <-connected:
			case <-ctx.Done():
				return ctx.Err()
			}
			return bridge.monitorHealth(ctx, *healthInterval, func(topic string, body []byte) {
				if token := mc.Publish(topic, 1, true, body); token.Wait() && token.Error() != nil {
					log.Error().Err(token.Error()).Str("topic", topic).Msg("Error publishing health")
				}
			})
		})
	}

	log.Info().Str("port", port).Str("broker", cfg.MQTT.BrokerURL()).Str("topic", cfg.MQTT.Topic).Str("http", cfg.HTTP.Addr).Msg("OSPlink bridge started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bridge stopped")
		return
	}
	log.Info().Msg("Shutting down...")
}

// applyMQTTFlags lets -L and the credential flags override the config file.
func applyMQTTFlags(m *config.MQTT, brokerURL, username, password, clientID string) error {
	if brokerURL != "" {
		u, err := url.Parse(brokerURL)
		if err != nil {
			return fmt.Errorf("invalid broker URL: %w", err)
		}
		if u.Scheme != "mqtt" && u.Scheme != "tcp" {
			return fmt.Errorf("unsupported scheme: %s (use mqtt:// or tcp://)", u.Scheme)
		}
		m.Broker = u.Hostname()
		if p := u.Port(); p != "" {
			if m.Port, err = strconv.Atoi(p); err != nil {
				return fmt.Errorf("invalid broker port %q", p)
			}
		}
		if topic := strings.Trim(u.Path, "/"); topic != "" {
			m.Topic = topic
		}
	}
	if username != "" {
		m.Username = username
	}
	if password != "" {
		m.Password = password
	}
	if clientID != "" {
		m.ClientID = clientID
	}
	if m.ClientID == "" {
		m.ClientID = "osplink_bridge_" + uuid.NewString()[:8]
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, hub *Hub, bridge *Bridge) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, body, _ := bridge.Handle(bridge.topic, nil)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	mux.HandleFunc("/command/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		_, body, ok := bridge.Handle(bridge.topic+"/"+strings.TrimPrefix(r.URL.Path, "/command/"), raw)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// runMQTT connects, serves the bridge topics and hands the connected client
// to ready so other publishers can use it.
func runMQTT(ctx context.Context, m config.MQTT, bridge *Bridge, ready chan<- mqtt.Client) error {
	log := bridge.log

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.BrokerURL())
	opts.SetClientID(m.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	if m.Username != "" {
		opts.SetUsername(m.Username)
	}
	if m.Password != "" {
		opts.SetPassword(m.Password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("Connection lost")
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("Connected to MQTT broker")
		for _, topic := range bridge.Topics() {
			token := client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
				log.Debug().Str("topic", msg.Topic()).Bytes("payload", msg.Payload()).Msg("Received message")
				replyTopic, body, ok := bridge.Handle(msg.Topic(), msg.Payload())
				if !ok {
					return
				}
				token := client.Publish(replyTopic, 1, false, body)
				token.Wait()
				if token.Error() != nil {
					log.Error().Err(token.Error()).Str("topic", replyTopic).Msg("Error publishing to status topic")
				}
			})
			token.Wait()
			if token.Error() != nil {
				log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
				continue
			}
			log.Info().Str("topic", topic).Msg("Subscribed")
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	ready <- client
	<-ctx.Done()
	client.Disconnect(250)
	log.Info().Msg("Disconnected from MQTT broker")
	return ctx.Err()
}
