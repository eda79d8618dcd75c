package messages

import (
	"encoding/json"
	"fmt"
)

// PartType tags a ContentPart variant.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
	PartDocument PartType = "document"
	PartOther    PartType = "other"
)

// ContentPart is one element of a message's content. Exactly one variant's
// field group is populated, selected by Type.
//
// The "other" variant is a provider-opaque escape hatch: a payload a provider
// emitted that has no neutral representation. It is replayed verbatim to the
// provider that produced it and degrades to a readable marker for any other
// provider.
type ContentPart struct {
	Type PartType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image_url
	URL       string `json:"url,omitempty"`
	Detail    string `json:"detail,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// document (base64 data, MediaType is application/pdf)
	Data string `json:"data,omitempty"`

	// other
	Provider string          `json:"provider,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Text builds a text content part.
func Text(s string) ContentPart {
	return ContentPart{Type: PartText, Text: s}
}

// ImageURL builds an image content part.
func ImageURL(url string) ContentPart {
	return ContentPart{Type: PartImageURL, URL: url}
}

// Document builds a PDF document part from base64 data.
func Document(data string) ContentPart {
	return ContentPart{Type: PartDocument, Data: data, MediaType: "application/pdf"}
}

// Other builds a provider-opaque content part.
func Other(provider, kind string, payload json.RawMessage) ContentPart {
	return ContentPart{Type: PartOther, Provider: provider, Kind: kind, Payload: payload}
}

// AsText returns a readable textual rendition of the part. Text parts return
// their text; "other" parts degrade to their marker form; media parts return
// a short placeholder.
func (p ContentPart) AsText() string {
	switch p.Type {
	case PartText:
		return p.Text
	case PartOther:
		return p.Marker()
	case PartImageURL:
		return "[image]"
	case PartDocument:
		return "[document]"
	default:
		return ""
	}
}

// Marker is the degraded textual form of an "other" part, used when the part
// is replayed to a provider different from the one that produced it.
func (p ContentPart) Marker() string {
	snippet := string(p.Payload)
	const maxSnippet = 200
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	return fmt.Sprintf("[other:%s/%s] %s", p.Provider, p.Kind, snippet)
}
