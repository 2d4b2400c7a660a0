package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type branchWire struct {
	Code string          `json:"code"`
	DMS  json.RawMessage `json:"dms"`
}

// UnmarshalJSON decodes {"code": "...", "dms": {"<DMS>": ["<report>", ...]}}
// keeping DMS keys in document order.
func (b *Branch) UnmarshalJSON(data []byte) error {
	var w branchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Code = w.Code
	b.DMS = nil
	if len(bytes.TrimSpace(w.DMS)) == 0 || string(bytes.TrimSpace(w.DMS)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(w.DMS))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("branch %q: dms must be an object", w.Code)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var reports []string
		if err := dec.Decode(&reports); err != nil {
			return fmt.Errorf("branch %q: dms %q: %w", w.Code, name, err)
		}
		b.DMS = append(b.DMS, DMSReports{Name: name, Reports: reports})
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (b Branch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"code":`)
	code, _ := json.Marshal(b.Code)
	buf.Write(code)
	buf.WriteString(`,"dms":{`)
	for i, d := range b.DMS {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(d.Name)
		v, err := json.Marshal(d.Reports)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
