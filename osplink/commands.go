package osplink

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusOK is the status token of a successful command.
const StatusOK = "ok"

const (
	resetInitAnchor = "resetinit: "
	resetInitFailed = "ERROR: resetinit failed "
	rxAnchor        = "rx none "
)

// ResetInit resets and initialises the OSP chain. It returns the direction
// mode the firmware detected ("loop" or "bidir") and the address of the last
// node.
func (c *Client) ResetInit() (dirmux string, lastAddr uint16, err error) {
	const cmd = "osp resetinit"
	resp, err := c.conn.Do(cmd)
	if err != nil {
		return "", 0, err
	}

	// The firmware reports a failed chain walk on its own line.
	if line, ok := lineAfter(resp, resetInitFailed); ok {
		status := strings.TrimSuffix(strings.TrimPrefix(line, "("), ")")
		return "", 0, &Error{Kind: CommandFailed, Command: cmd, Status: status, Response: resp}
	}

	// resetinit: <dirmux> <lastaddr> (<status>)
	line, ok := lineAfter(resp, resetInitAnchor)
	if !ok {
		return "", 0, malformed(cmd, strings.TrimSpace(resetInitAnchor), resp)
	}
	open := strings.LastIndex(line, " (")
	if open < 0 || !strings.HasSuffix(line, ")") {
		return "", 0, malformed(cmd, "(status)", resp)
	}
	status := line[open+2 : len(line)-1]
	fields := strings.Fields(line[:open])
	if len(fields) != 2 {
		return "", 0, malformed(cmd, "dirmux lastaddr", resp)
	}
	if status != StatusOK {
		return "", 0, &Error{Kind: CommandFailed, Command: cmd, Status: status, Response: resp}
	}
	addr, err := strconv.ParseUint(fields[1], 16, 16)
	if err != nil {
		return "", 0, malformed(cmd, "lastaddr", resp)
	}

	c.log.Debug().Str("dirmux", fields[0]).Uint16("last", uint16(addr)).Msg("resetinit")
	return fields[0], uint16(addr), nil
}

// ClearError sends the clrerror telegram to addr.
func (c *Client) ClearError(addr uint16) error {
	return c.send(addr, "clrerror")
}

// GoActive sends the goactive telegram to addr.
func (c *Client) GoActive(addr uint16) error {
	return c.send(addr, "goactive")
}

// SetPwmChannel sets the PWM values of channel chn of the node at addr.
// Each 16-bit value goes on the wire as a high and a low byte.
func (c *Client) SetPwmChannel(addr uint16, chn uint8, red, green, blue uint16) error {
	return c.send(addr, "setpwmchn",
		fmt.Sprintf("%X", chn),
		"ff",
		hi(red), lo(red),
		hi(green), lo(green),
		hi(blue), lo(blue),
	)
}

// BoardReboot restarts the board. The firmware comes back with echo on, so
// the connection is synchronised again afterwards.
func (c *Client) BoardReboot() error {
	if _, err := c.conn.Do("board reboot"); err != nil {
		return err
	}
	return c.conn.Resync()
}

// send issues "osp send <addr> <tele> <args>..." and checks the rx status.
func (c *Client) send(addr uint16, tele string, args ...string) error {
	cmd := fmt.Sprintf("osp send %03X %s", addr, tele)
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	resp, err := c.conn.Do(cmd)
	if err != nil {
		return err
	}

	line, ok := lineAfter(resp, rxAnchor)
	if !ok {
		return malformed(cmd, strings.TrimSpace(rxAnchor), resp)
	}
	if line != StatusOK {
		return &Error{Kind: CommandFailed, Command: cmd, Status: line, Response: resp}
	}
	c.log.Trace().Str("cmd", cmd).Msg("telegram ok")
	return nil
}

// lineAfter returns the rest of the line following the last occurrence of
// anchor, without surrounding white space.
func lineAfter(resp, anchor string) (string, bool) {
	i := strings.LastIndex(resp, anchor)
	if i < 0 {
		return "", false
	}
	rest := resp[i+len(anchor):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

func malformed(cmd, label, resp string) error {
	return &Error{Kind: MalformedResponse, Command: cmd, Label: label, Response: resp}
}

func hi(v uint16) string { return fmt.Sprintf("%02X", v>>8) }
func lo(v uint16) string { return fmt.Sprintf("%02X", v&0xFF) }
