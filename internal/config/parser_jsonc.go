package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tailscale/hujson"
)

// decodeJSONC accepts comments and trailing commas. hujson blanks them out in
// place, so decoder offsets still point into the original document.
func decodeJSONC(content string) (filePayload, error) {
	standard, err := hujson.Standardize([]byte(content))
	if err != nil {
		return filePayload{}, fmt.Errorf("jsonc: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(standard))
	decoder.DisallowUnknownFields()

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		return filePayload{}, wrapJSONDecodeError(content, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return filePayload{}, wrapJSONDecodeError(content, err)
	}
	return payload, nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

// offsetToLineCol maps a 1-based byte offset to a 1-based line and column.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))

	prefix := content[:max(limit-1, 0)]
	line := 1 + bytes.Count([]byte(prefix), []byte{'\n'})
	col := limit
	if i := bytes.LastIndexByte([]byte(prefix), '\n'); i >= 0 {
		col = limit - 1 - i
	}
	return line, col
}
