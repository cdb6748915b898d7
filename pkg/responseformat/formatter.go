// Package responseformat writes analysis results as JSON or MessagePack.
package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Supported output formats
const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
)

// Float is a float64 that encodes NaN and infinities as JSON null. Degenerate
// statistics are NaN and encoding/json refuses them otherwise.
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Floats converts a slice for output
func Floats(values []float64) []Float {
	out := make([]Float, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}

// Formatter handles encoding results in JSON or MessagePack format
type Formatter struct {
	format string
}

// NewFormatter creates a formatter for the named format. JSON is the default
// when format is empty.
func NewFormatter(format string) (*Formatter, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return &Formatter{format: FormatJSON}, nil
	case FormatMsgPack:
		return &Formatter{format: FormatMsgPack}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Format returns the selected format name
func (f *Formatter) Format() string {
	return f.format
}

// Write encodes data to w
func (f *Formatter) Write(w io.Writer, data any) error {
	if f.format == FormatMsgPack {
		return f.writeMsgPack(w, data)
	}
	return f.writeJSON(w, data)
}

func (f *Formatter) writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) writeMsgPack(w io.Writer, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
