// Package persist provides codec-based file persistence for state types.
// Writes are atomic: state is encoded to a temp file in the target
// directory and renamed into place, so readers never observe a partial
// artifact.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// jsonExtension is the file extension for the JSON codec.
const jsonExtension = ".json"

// defaultIndent is the indentation for pretty-printed JSON.
const defaultIndent = "  "

// stateDirPerm is the mode for created state directories.
const stateDirPerm = 0o755

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json").
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// SaveState atomically saves the given state to a file in the specified
// directory, creating the directory if needed. The filename is constructed
// from the basename and the codec's extension.
func SaveState(dir, basename string, codec Codec, state any) error {
	err := os.MkdirAll(dir, stateDirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(dir, basename+codec.Extension())

	tmp, err := os.CreateTemp(dir, basename+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	encodeErr := codec.Encode(tmp, state)

	closeErr := tmp.Close()

	if encodeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("encode state: %w", encodeErr)
	}

	if closeErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close temp state file: %w", closeErr)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// IsNotExist reports whether the load error stems from a missing state
// file, as opposed to an unreadable one.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// LoadState loads state from a file in the specified directory.
// The state parameter must be a pointer to the target struct.
func LoadState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
