package osplink

import (
	"strings"
)

// VersionCommand asks the firmware for its build information.
const VersionCommand = "version"

// DefaultVersionFormat renders e.g. "OSPlink 1.1".
const DefaultVersionFormat = "%La %Va"

// Labels of the version reply, in the order the firmware prints them.
const (
	LabelApp      = "app     : "
	LabelRuntime  = "runtime : "
	LabelCompiler = "compiler: "
	LabelArduino  = "arduino : "
	LabelCompiled = "compiled: "
)

// VersionInfo is the decoded reply to VersionCommand.
type VersionInfo struct {
	AppName        string // OSPlink
	AppVersion     string // 1.1
	Runtime        string // Arduino ESP32 2_0_14
	Compiler       string // 8.4.0
	BoardID        string // 10816
	BuildTimestamp string // Nov  2 2022, 14:01:11
	Raw            string
}

// App is the name and version as printed, e.g. "OSPlink 1.1".
func (v VersionInfo) App() string {
	return v.AppName + " " + v.AppVersion
}

// ParseVersion decodes a version reply. Each label must start a line; its
// value runs to the end of that line. The app value splits into name and
// version at its last space.
func ParseVersion(resp string) (VersionInfo, error) {
	fields := make(map[string]string, 5)
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimRight(line, "\r")
		for _, label := range []string{LabelApp, LabelRuntime, LabelCompiler, LabelArduino, LabelCompiled} {
			if _, seen := fields[label]; !seen && strings.HasPrefix(line, label) {
				fields[label] = line[len(label):]
			}
		}
	}

	lookup := func(label string) (string, error) {
		v, ok := fields[label]
		if !ok {
			return "", &Error{
				Kind:     MalformedResponse,
				Command:  VersionCommand,
				Label:    strings.TrimSpace(label),
				Response: resp,
			}
		}
		return v, nil
	}

	info := VersionInfo{Raw: resp}
	app, err := lookup(LabelApp)
	if err != nil {
		return info, err
	}
	i := strings.LastIndexByte(app, ' ')
	if i < 0 {
		return info, &Error{Kind: MalformedResponse, Command: VersionCommand, Label: "app version", Response: resp}
	}
	info.AppName, info.AppVersion = app[:i], app[i+1:]

	for _, f := range []struct {
		label string
		dst   *string
	}{
		{LabelRuntime, &info.Runtime},
		{LabelCompiler, &info.Compiler},
		{LabelArduino, &info.BoardID},
		{LabelCompiled, &info.BuildTimestamp},
	} {
		if *f.dst, err = lookup(f.label); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Format substitutes the placeholders in format:
//
//	%v   raw reply        %a   app (name and version)
//	%La  app name         %Va  app version
//	%r   runtime          %c   compiler
//	%i   board id         %t   build timestamp
//
// Unknown placeholders are copied as they are. Substituted text is not
// scanned again.
func (v VersionInfo) Format(format string) string {
	var b strings.Builder
	for len(format) > 0 {
		i := strings.IndexByte(format, '%')
		if i < 0 {
			b.WriteString(format)
			break
		}
		b.WriteString(format[:i])
		format = format[i:]

		val, n := v.placeholder(format)
		if n == 0 {
			b.WriteByte('%')
			format = format[1:]
			continue
		}
		b.WriteString(val)
		format = format[n:]
	}
	return b.String()
}

// placeholder resolves the placeholder at the start of s and returns its
// value and length, or n == 0 if s does not start with one.
func (v VersionInfo) placeholder(s string) (val string, n int) {
	switch {
	case strings.HasPrefix(s, "%La"):
		return v.AppName, 3
	case strings.HasPrefix(s, "%Va"):
		return v.AppVersion, 3
	case len(s) < 2:
		return "", 0
	}
	switch s[1] {
	case 'v':
		return v.Raw, 2
	case 'a':
		return v.App(), 2
	case 'r':
		return v.Runtime, 2
	case 'c':
		return v.Compiler, 2
	case 'i':
		return v.BoardID, 2
	case 't':
		return v.BuildTimestamp, 2
	}
	return "", 0
}
