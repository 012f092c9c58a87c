// Package osplink is a client for the OSPlink firmware, which drives a chain
// of OSP nodes (RGB LED drivers) from a microcontroller.
//
// A Client wraps a cmdint.Conn. Open checks that the board runs OSPlink,
// and each domain command turns into one interpreter line:
//
//	ResetInit      osp resetinit
//	ClearError     osp send <addr> clrerror
//	GoActive       osp send <addr> goactive
//	SetPwmChannel  osp send <addr> setpwmchn <chn> ff <rH> <rL> <gH> <gL> <bH> <bL>
//
// Addresses and values are unprefixed hex. Every reply ends in a status
// token; anything but "ok" is returned as a CommandFailed error.
//
// Example:
//
//	cl := osplink.New(cmdint.New())
//	if err := cl.Open("/dev/ttyUSB0"); err != nil {
//	    return err
//	}
//	defer cl.Close(true)
//
//	dirmux, last, err := cl.ResetInit()
//	...
//	err = cl.SetPwmChannel(0x001, 0, 0x3333, 0, 0)
package osplink
