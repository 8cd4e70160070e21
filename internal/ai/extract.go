package ai

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("```[A-Za-z0-9_-]*")

// ExtractJSON достает единственный JSON-объект из свободного текста ответа модели.
// Числа возвращаются как json.Number.
func ExtractJSON(raw string) (map[string]interface{}, error) {
	payload := sliceObject(raw)
	if payload == "" {
		return nil, &ExtractionError{Kind: ErrMalformedResponse, Raw: raw}
	}

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()

	var object map[string]interface{}
	if err := decoder.Decode(&object); err != nil {
		return nil, &ExtractionError{Kind: ErrInvalidJSON, Raw: raw, Err: err}
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &ExtractionError{Kind: ErrInvalidJSON, Raw: raw, Err: errors.New("unexpected content after json object")}
	}

	return object, nil
}

func sliceObject(input string) string {
	trimmed := strings.TrimSpace(codeFence.ReplaceAllString(input, ""))
	if trimmed == "" {
		return ""
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}
