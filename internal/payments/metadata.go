package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	accountKeys = []string{"userId", "user_id", "accountId", "account_id"}
	creditKeys  = []string{"credits", "coins"}
	planKeys    = []string{"planName", "plan_name", "plan", "type"}
)

// DecodeObject decodes a JSON object that may also arrive wrapped in a JSON
// string, as widget and webhook payloads sometimes do. Null or empty input
// yields an empty map.
func DecodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode wrapped json: %w", err)
		}
		return DecodeObject([]byte(inner))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// MetadataFromFields reads the echoed checkout metadata. A missing account id
// is left as uuid.Nil for the caller to judge; a missing credit count falls
// back to the plan's. The echo passes through the buyer's browser, so Credits
// is informational only: grants are priced from the plan catalog.
func MetadataFromFields(fields map[string]any) (Metadata, error) {
	var md Metadata

	if s := StringField(fields, accountKeys...); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return Metadata{}, fmt.Errorf("invalid account id %q", s)
		}
		md.AccountID = id
	}

	name := StringField(fields, planKeys...)
	plan, known := PlanByName(name)
	if known {
		md.PlanName = plan.Name
		md.Subscription = plan.Subscription
		md.Credits = plan.Credits
	} else {
		md.PlanName = name
	}

	credits, found, err := IntField(fields, creditKeys...)
	if err != nil {
		return Metadata{}, err
	}
	if found {
		md.Credits = credits
	}

	if md.Credits <= 0 {
		return Metadata{}, errors.New("missing or non-positive credits")
	}

	return md, nil
}

// StringFields widens a string map such as provider metadata.
func StringFields(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringField returns the first non-empty value among keys, rendering
// numbers as text.
func StringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// IntField returns the first integer value among keys. Numbers may arrive as
// JSON numbers or numeric strings.
func IntField(fields map[string]any, keys ...string) (int64, bool, error) {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}

		var s string
		switch t := v.(type) {
		case json.Number:
			s = t.String()
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			return 0, false, fmt.Errorf("field %q has unsupported type %T", k, v)
		}

		if s == "" {
			continue
		}

		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %q is not an integer: %q", k, s)
		}
		return n, true, nil
	}
	return 0, false, nil
}
