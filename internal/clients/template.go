package clients

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

type templateByNameRequest struct {
	Name     string         `json:"name"`
	Type     domain.Channel `json:"type"`
	Language string         `json:"language"`
}

type listTemplatesRequest struct {
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Type     *domain.Channel `json:"type,omitempty"`
	Language string          `json:"language"`
}

type TemplateClient struct {
	caller rpc.Caller
	queue  string
}

func NewTemplateClient(caller rpc.Caller, queue string) *TemplateClient {
	return &TemplateClient{caller: caller, queue: queue}
}

func (c *TemplateClient) GetByName(ctx context.Context, name string, channel domain.Channel, language string) (domain.Template, error) {
	var tmpl domain.Template
	resp, err := call(ctx, c.caller, c.queue, PatternTemplateGetByName, lookupTimeout, templateByNameRequest{
		Name:     name,
		Type:     channel,
		Language: language,
	})
	if err != nil {
		return tmpl, orElse(err, domain.ErrNotFound)
	}
	if err := resp.Decode(&tmpl); err != nil {
		return tmpl, err
	}
	return tmpl, nil
}

func (c *TemplateClient) List(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error) {
	page := domain.Page[domain.Template]{Page: query.Page, Limit: query.Limit}

	resp, err := call(ctx, c.caller, c.queue, PatternTemplateGetAll, lookupTimeout, listTemplatesRequest{
		Page:     query.Page,
		Limit:    query.Limit,
		Type:     query.Type,
		Language: query.Language,
	})
	if err != nil {
		return page, orElse(err, domain.ErrValidation)
	}

	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &page.Items); err != nil {
			return page, fmt.Errorf("failed to decode %s reply: %w", PatternTemplateGetAll, err)
		}
	}
	if page.Items == nil {
		page.Items = []domain.Template{}
	}

	page.Total = int64(len(page.Items))
	if resp.Meta != nil {
		page.Total = resp.Meta.Total
		if resp.Meta.Page > 0 {
			page.Page = resp.Meta.Page
		}
		if resp.Meta.Limit > 0 {
			page.Limit = resp.Meta.Limit
		}
	}
	return page, nil
}
