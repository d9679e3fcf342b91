package notion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Property type discriminators used by the resolver. Other types are
// decoded but carry no payload here.
const (
	TypeTitle    = "title"
	TypeDate     = "date"
	TypeRichText = "rich_text"
	TypeText     = "text"
)

// RichText is one segment of a rich-text array.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// PlainText flattens segments into one string without separators.
func PlainText(segments []RichText) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.PlainText)
	}
	return b.String()
}

// DateRange is the raw payload of a date property.
type DateRange struct {
	Start    string  `json:"start"`
	End      *string `json:"end"`
	TimeZone *string `json:"time_zone"`
}

// Property is one entry of a record's property bag. Type selects which
// payload field is meaningful; text-typed properties keep their segments
// in RichText.
type Property struct {
	Name     string     `json:"-"`
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Title    []RichText `json:"title,omitempty"`
	RichText []RichText `json:"rich_text,omitempty"`
	Date     *DateRange `json:"date,omitempty"`
}

// Text returns the plain text of a title or text-typed property.
func (p Property) Text() string {
	if p.Type == TypeTitle {
		return PlainText(p.Title)
	}
	return PlainText(p.RichText)
}

// Properties is a property bag in the order the API returned it.
type Properties []Property

// UnmarshalJSON decodes a JSON object keeping key order, since the
// resolver's fallbacks are defined in bag iteration order.
func (ps *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ps = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	out := Properties{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: unexpected key %v", keyTok)
		}
		var p Property
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("properties: %q: %w", name, err)
		}
		p.Name = name
		out = append(out, p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*ps = out
	return nil
}

// MarshalJSON writes the bag back as an object in the same order.
func (ps Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Page is one record of a database query.
type Page struct {
	ID             string     `json:"id"`
	URL            string     `json:"url,omitempty"`
	LastEditedTime string     `json:"last_edited_time,omitempty"`
	Properties     Properties `json:"properties"`
}

type queryRequest struct {
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type queryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type database struct {
	Title []RichText `json:"title"`
}
