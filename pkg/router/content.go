package router

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/tidwall/gjson"
)

// extractValue pulls the routing key out of the payload according to the
// router's source type and extraction path. A path that resolves to nothing
// is a miss, not an error.
func extractValue(config *models.RouterConfig, payload map[string]any) (string, bool, error) {
	switch config.SourceType {
	case models.SourceTypeJSON:
		return extractJSON(config.ExtractionPath, payload)
	case models.SourceTypeXML:
		return extractXML(config.ExtractionPath, payload)
	default:
		return "", false, fmt.Errorf("%w: unsupported source type %q", ErrInvalidRouterConfig, config.SourceType)
	}
}

func extractJSON(path string, payload map[string]any) (string, bool, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode payload: %w", err)
	}

	result := gjson.GetBytes(doc, path)
	if !result.Exists() || result.Type == gjson.Null {
		return "", false, nil
	}

	return result.String(), true, nil
}

// extractXML resolves a slash-separated element path against an XML document
// carried in the payload's "body" (or "content") field.
func extractXML(path string, payload map[string]any) (string, bool, error) {
	raw, ok := payload["body"].(string)
	if !ok {
		raw, ok = payload["content"].(string)
	}

	if !ok || raw == "" {
		return "", false, nil
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 {
		return "", false, nil
	}

	decoder := xml.NewDecoder(strings.NewReader(raw))

	depth := 0
	matchDepth := 0

	for {
		token, err := decoder.Token()
		if err != nil {
			return "", false, nil //nolint:nilerr // Malformed XML is a routing miss
		}

		switch t := token.(type) {
		case xml.StartElement:
			if matchDepth == depth && matchDepth < len(segments) && t.Name.Local == segments[matchDepth] {
				matchDepth++

				if matchDepth == len(segments) {
					var value string
					if err := decoder.DecodeElement(&value, &t); err != nil {
						return "", false, nil
					}

					return strings.TrimSpace(value), true, nil
				}
			}

			depth++
		case xml.EndElement:
			depth--
			if matchDepth > depth {
				matchDepth = depth
			}
		}
	}
}
