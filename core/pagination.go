package core

const (
	PageTokenField     = "pageToken"
	PageSizeField      = "pageSize"
	NextPageTokenField = "nextPageToken"
)

// Page is the data payload of a paginated operation. NextPageToken is copied
// verbatim from the provider; its absence marks the last page.
type Page struct {
	Items         []any          `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

func (p Page) HasMore() bool {
	return p.NextPageToken != ""
}

// PageFromCollection lifts body[collectionKey] into Items and keeps the
// remaining top-level fields, such as newStartPageToken, in Meta.
func PageFromCollection(body map[string]any, collectionKey string) Page {
	page := Page{Items: []any{}}
	for key, value := range body {
		switch key {
		case collectionKey:
			if items, ok := value.([]any); ok {
				page.Items = items
			}
		case NextPageTokenField:
			if token, ok := value.(string); ok {
				page.NextPageToken = token
			}
		default:
			if page.Meta == nil {
				page.Meta = map[string]any{}
			}
			page.Meta[key] = value
		}
	}
	return page
}

var paginationFields = []FieldSpec{
	{Name: PageTokenField, Type: FieldString, Description: "Opaque cursor returned as nextPageToken by the previous page."},
	{Name: PageSizeField, Type: FieldInteger, Description: "Maximum number of items to return."},
}
