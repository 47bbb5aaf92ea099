package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// stripCodeFence removes a surrounding markdown code fence such as
// ```json ... ```.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// trimToJSON drops commentary before the first '{' or '[' and after the
// last matching closer. Input that already starts like JSON is returned
// as is.
func trimToJSON(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune("{[\"", rune(s[0])) {
		return s
	}
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < open {
		return s[open:]
	}
	return s[open : end+1]
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// GenerateSchema reflects the JSON schema of value's type for structured
// output requests. Definitions are inlined and additional properties are
// rejected.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// UnmarshalFlexible decodes model output into out. It accepts a surrounding
// code fence or commentary, double-encoded JSON and, as a last resort, JSON
// that jsonrepair can fix. Failures wrap ErrMalformedOutput.
func UnmarshalFlexible(input string, out any) error {
	input = trimToJSON(stripCodeFence(input))
	if input == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("%w: json repair failed: %v (input: %s)", ErrMalformedOutput, err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err == nil {
		return nil
	}

	return fmt.Errorf(
		"%w: unmarshal failed after repair: input=%s repaired=%s",
		ErrMalformedOutput, input, repaired,
	)
}
