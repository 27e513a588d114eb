// Package ticket encodes logical tickets into raw printer byte streams.
package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Ticket is the logical content of a print job.
type Ticket struct {
	Title    string
	Subtitle string
	Lines    []string
}

// Dialect names a printer command language.
type Dialect string

const (
	DialectEscPos Dialect = "escpos"
	DialectPCL    Dialect = "pcl"
	DialectText   Dialect = "text"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectEscPos, DialectPCL, DialectText:
		return d, nil
	case "":
		return DialectEscPos, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", s)
	}
}

// Encode renders t in the given dialect.
func Encode(d Dialect, t Ticket) ([]byte, error) {
	switch d {
	case DialectEscPos:
		return EscPos(t), nil
	case DialectPCL:
		return PCL(t, t.Title), nil
	case DialectText:
		return Text(t), nil
	}
	return nil, fmt.Errorf("unknown dialect %q", d)
}

// ESC/POS control sequences.
var (
	escInit        = []byte{0x1B, 0x40}
	escAlignLeft   = []byte{0x1B, 0x61, 0x00}
	escAlignCenter = []byte{0x1B, 0x61, 0x01}
	escBoldOn      = []byte{0x1B, 0x45, 0x01}
	escBoldOff     = []byte{0x1B, 0x45, 0x00}
	gsPartialCut   = []byte{0x1D, 0x56, 0x00}
)

// EscPos renders a thermal receipt: centred bold title, optional subtitle,
// left-aligned body, feed and partial cut.
func EscPos(t Ticket) []byte {
	var b bytes.Buffer
	b.Write(escInit)
	b.Write(escAlignCenter)
	b.Write(escBoldOn)
	b.WriteString(t.Title)
	b.WriteByte('\n')
	b.Write(escBoldOff)
	if t.Subtitle != "" {
		b.WriteString(t.Subtitle)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(escAlignLeft)
	for _, line := range t.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\n\n\n")
	b.Write(gsPartialCut)
	return b.Bytes()
}

const (
	uel       = "\x1b%-12345X"
	pclReset  = "\x1bE"
	formFeed  = "\f"
	crlf      = "\r\n"
	pjlPrefix = "@PJL "
)

// PCL renders a PJL-bracketed PCL job named jobName.
func PCL(t Ticket, jobName string) []byte {
	name := pjlJobName(jobName)

	var b bytes.Buffer
	b.WriteString(uel)
	b.WriteString(pjlPrefix + `JOB NAME="` + name + `"` + crlf)
	b.WriteString(pjlPrefix + "ENTER LANGUAGE=PCL" + crlf)
	b.WriteString(pclReset)
	b.WriteString(t.Title + crlf)
	if t.Subtitle != "" {
		b.WriteString(t.Subtitle + crlf)
	}
	b.WriteString(crlf)
	for _, line := range t.Lines {
		b.WriteString(line + crlf)
	}
	b.WriteString(formFeed)
	b.WriteString(uel)
	b.WriteString(pjlPrefix + `EOJ NAME="` + name + `"` + crlf)
	b.WriteString(uel)
	return b.Bytes()
}

func pjlJobName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '"' || r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "TICKET"
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// Text renders plain CRLF text for printers with no command language. The
// leading blank lines prime printers that only flush after some input.
func Text(t Ticket) []byte {
	var b bytes.Buffer
	b.WriteString(crlf + crlf)
	b.WriteString(t.Title + crlf)
	if t.Subtitle != "" {
		b.WriteString(t.Subtitle + crlf)
	}
	b.WriteString(crlf)
	for _, line := range t.Lines {
		b.WriteString(line + crlf)
	}
	b.WriteString(crlf + crlf + crlf)
	b.WriteString(formFeed)
	return b.Bytes()
}

// TestTicket builds the diagnostic ticket printed by the test endpoints.
func TestTicket(d Dialect, printerName, addr, gatewayID string, at time.Time) Ticket {
	label := map[Dialect]string{
		DialectEscPos: "ESC/POS",
		DialectPCL:    "PCL/PJL",
		DialectText:   "Plain text",
	}[d]

	lines := []string{
		"Printer: " + printerName,
		"Address: " + addr,
		"Dialect: " + label,
		"Time:    " + at.Format(time.RFC3339),
	}
	if gatewayID != "" {
		lines = append(lines, "Gateway: "+gatewayID)
	}
	lines = append(lines, "", "If you can read this, printing works.")

	return Ticket{
		Title:    "TEST PRINT",
		Subtitle: printerName,
		Lines:    lines,
	}
}
