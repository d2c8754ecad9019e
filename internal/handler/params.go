package handler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// badParamsError is a request the caller got wrong: missing or unexpected
// parameters, a malformed body, a bad header. Always a 400.
type badParamsError struct {
	message string
}

func (e *badParamsError) Error() string {
	return e.message
}

func badParams(format string, args ...any) *badParamsError {
	return &badParamsError{message: fmt.Sprintf(format, args...)}
}

// checkParamNames enforces the strict parameter contract: every mandatory
// name present, nothing outside mandatory ∪ optional.
func checkParamNames(present map[string]bool, mandatory, optional []string) error {
	allowed := make(map[string]bool, len(mandatory)+len(optional))
	var missing []string
	for _, name := range mandatory {
		allowed[name] = true
		if !present[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range optional {
		allowed[name] = true
	}

	var extra []string
	for name := range present {
		if !allowed[name] {
			extra = append(extra, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return badParams("Missing request parameters: '%s'", strings.Join(missing, "', '"))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return badParams("Unexpected request parameters: '%s'", strings.Join(extra, "', '"))
	}
	return nil
}

// jsonParams decodes a JSON object body and enforces the mandatory/optional
// parameter sets before the body is bound to a typed request.
func jsonParams(body []byte, mandatory, optional []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return badParams("Invalid JSON request body.")
	}

	present := make(map[string]bool, len(fields))
	for name := range fields {
		present[name] = true
	}
	return checkParamNames(present, mandatory, optional)
}

// queryParams enforces the mandatory/optional sets over URL query parameters.
func queryParams(params map[string]string, mandatory, optional []string) error {
	present := make(map[string]bool, len(params))
	for name := range params {
		present[name] = true
	}
	return checkParamNames(present, mandatory, optional)
}
