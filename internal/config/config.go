// Package config loads the XML configuration shared by the osplink tools.
//
//	<config>
//	  <serial device="/dev/ttyUSB0" baud="115200" readTimeoutMs="10" execTimeoutMs="1500"/>
//	  <transcript file="osplink.log" mode="append"/>
//	  <mqtt broker="localhost" port="1883" username="" password="" clientId="" topic="osplink"/>
//	  <http addr=":8080"/>
//	  <script>
//	    exec version
//	    expect 'OSPlink'
//	  </script>
//	</config>
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/John-MustangGT/osplink/transcript"
)

type Config struct {
	XMLName    xml.Name   `xml:"config"`
	Serial     Serial     `xml:"serial"`
	Transcript Transcript `xml:"transcript"`
	MQTT       MQTT       `xml:"mqtt"`
	HTTP       HTTP       `xml:"http"`
	Script     string     `xml:"script"`
}

type Serial struct {
	Device        string `xml:"device,attr"`
	Baud          int    `xml:"baud,attr"`
	ReadTimeoutMs int    `xml:"readTimeoutMs,attr"`
	ExecTimeoutMs int    `xml:"execTimeoutMs,attr"`
}

type Transcript struct {
	File string `xml:"file,attr"`
	Mode string `xml:"mode,attr"` // "truncate" (default) or "append"
}

type MQTT struct {
	Broker   string `xml:"broker,attr"`
	Port     int    `xml:"port,attr"`
	Username string `xml:"username,attr"`
	Password string `xml:"password,attr"`
	ClientID string `xml:"clientId,attr"`
	Topic    string `xml:"topic,attr"`
}

type HTTP struct {
	Addr string `xml:"addr,attr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an XML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse XML config: %w", err)
	}
	c.applyDefaults()
	if _, err := c.Transcript.OpenMode(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = 115200
	}
	if c.Serial.ReadTimeoutMs <= 0 {
		c.Serial.ReadTimeoutMs = 10
	}
	if c.Serial.ExecTimeoutMs <= 0 {
		c.Serial.ExecTimeoutMs = 1500
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "osplink"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.Script = strings.TrimSpace(c.Script)
}

func (s Serial) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (s Serial) ExecTimeout() time.Duration {
	return time.Duration(s.ExecTimeoutMs) * time.Millisecond
}

// OpenMode maps the mode attribute to a transcript mode.
func (t Transcript) OpenMode() (transcript.Mode, error) {
	switch strings.ToLower(t.Mode) {
	case "", "truncate", "w":
		return transcript.Truncate, nil
	case "append", "a":
		return transcript.Append, nil
	}
	return transcript.Truncate, fmt.Errorf("invalid transcript mode %q (use truncate or append)", t.Mode)
}

// BrokerURL is the paho broker address, e.g. "tcp://localhost:1883".
func (m MQTT) BrokerURL() string {
	if m.Broker == "" {
		return ""
	}
	return fmt.Sprintf("tcp://%s:%d", m.Broker, m.Port)
}
