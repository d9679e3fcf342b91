package notion

import "strings"

// UntitledPlaceholder replaces an empty or missing title.
const UntitledPlaceholder = "Untitled"

var preferredDateNames = map[string]bool{
	"date":       true,
	"due":        true,
	"when":       true,
	"event date": true,
	"start":      true,
	"deadline":   true,
}

var descriptionNames = map[string]bool{
	"notes":       true,
	"description": true,
	"details":     true,
	"summary":     true,
	"body":        true,
	"content":     true,
}

func isText(p Property) bool {
	return p.Type == TypeRichText || p.Type == TypeText
}

// Title returns the trimmed text of the first title-typed property.
func Title(props Properties) string {
	for _, p := range props {
		if p.Type == TypeTitle {
			if title := strings.TrimSpace(PlainText(p.Title)); title != "" {
				return title
			}
			break
		}
	}
	return UntitledPlaceholder
}

// DateProperty picks the property holding the event date. Only date
// properties with a non-null value count. A property with a preferred
// name wins; when several have preferred names the first in bag order
// is taken. Otherwise the first date property is used.
func DateProperty(props Properties) (Property, bool) {
	var fallback *Property
	for i := range props {
		p := props[i]
		if p.Type != TypeDate || p.Date == nil {
			continue
		}
		if preferredDateNames[strings.ToLower(p.Name)] {
			return p, true
		}
		if fallback == nil {
			fallback = &props[i]
		}
	}
	if fallback == nil {
		return Property{}, false
	}
	return *fallback, true
}

// Description returns free text for the event body: a non-empty text
// property with a conventional name first, then any non-empty text
// property, else "".
func Description(props Properties) string {
	for _, p := range props {
		if isText(p) && descriptionNames[strings.ToLower(p.Name)] {
			if txt := PlainText(p.RichText); txt != "" {
				return txt
			}
		}
	}
	for _, p := range props {
		if isText(p) {
			if txt := PlainText(p.RichText); txt != "" {
				return txt
			}
		}
	}
	return ""
}
