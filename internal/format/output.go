// Package format encodes CLI command output.
package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Formats lists the accepted --format values; the first is the default.
var Formats = []string{"json", "edn"}

// Validate reports whether f is an accepted format ("" means default).
func Validate(f string) error {
	if f == "" {
		return nil
	}
	for _, ok := range Formats {
		if f == ok {
			return nil
		}
	}
	return fmt.Errorf("unknown format: %s (want json or edn)", f)
}

// Envelope wraps every command payload so output shape is stable.
type Envelope struct {
	Data  any      `json:"data"`
	Meta  *Meta    `json:"meta,omitempty"`
	Hints []string `json:"_hints,omitempty"`
}

type Meta struct {
	ListID int64  `json:"listId,omitempty"`
	API    string `json:"api,omitempty"`
}

// Write writes v in the requested format.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "edn":
		return WriteEDN(w, v, pretty)
	default:
		return Validate(format)
	}
}

// WriteJSON writes strict JSON followed by a newline.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
