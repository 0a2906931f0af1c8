package domain

// Template is a named, versioned message body owned by the template service.
type Template struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      Channel  `json:"type"`
	Language  string   `json:"language"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Variables []string `json:"variables,omitempty"`
	Version   int      `json:"version,omitempty"`
}

const (
	WelcomeEmailTemplate = "welcome-email"
	WelcomePushTemplate  = "welcome-push"
)

// WelcomeTemplateName returns the welcome template used for a channel.
func WelcomeTemplateName(channel Channel) string {
	if channel == ChannelPush {
		return WelcomePushTemplate
	}
	return WelcomeEmailTemplate
}

// TemplateQuery filters and paginates the template catalogue.
type TemplateQuery struct {
	Page     int
	Limit    int
	Type     *Channel
	Language string
}

// Page is a paginated slice of results.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

func (p Page[T]) HasNext() bool     { return p.Page < p.TotalPages() }
func (p Page[T]) HasPrevious() bool { return p.Page > 1 }
