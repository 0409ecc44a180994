package hydrus

import (
	"context"
	"sort"
	"strings"
)

// Hydrus service type codes the rule engine distinguishes.
const (
	ServiceTypeLocalFileDomain = 2
	ServiceTypeRatingNumerical = 6
	ServiceTypeRatingLike      = 7
	ServiceTypeRatingIncDec    = 22
)

// Service is one entry of the remote service catalog.
type Service struct {
	ServiceKey string `json:"service_key"`
	Name       string `json:"name"`
	Type       int    `json:"type"`
	TypePretty string `json:"type_pretty"`
	StarShape  string `json:"star_shape"`
	MinStars   int    `json:"min_stars"`
	MaxStars   int    `json:"max_stars"`
}

// IsRating reports whether the service stores ratings of any shape.
func (s Service) IsRating() bool {
	switch s.Type {
	case ServiceTypeRatingNumerical, ServiceTypeRatingLike, ServiceTypeRatingIncDec:
		return true
	}
	return false
}

// Catalog indexes the service list by key.
type Catalog struct {
	services []Service
	byKey    map[string]Service
}

// NewCatalog builds a catalog over the given services.
func NewCatalog(services []Service) *Catalog {
	byKey := make(map[string]Service, len(services))
	for _, svc := range services {
		byKey[svc.ServiceKey] = svc
	}
	return &Catalog{services: append([]Service(nil), services...), byKey: byKey}
}

// Lookup returns the service for a key.
func (c *Catalog) Lookup(key string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	svc, ok := c.byKey[strings.TrimSpace(key)]
	return svc, ok
}

// Services returns every catalog entry.
func (c *Catalog) Services() []Service {
	if c == nil {
		return nil
	}
	return append([]Service(nil), c.services...)
}

// LocalFileServices returns the named local file domains (type 2).
func (c *Catalog) LocalFileServices() []Service {
	if c == nil {
		return nil
	}
	var out []Service
	for _, svc := range c.services {
		if svc.Type == ServiceTypeLocalFileDomain && strings.TrimSpace(svc.Name) != "" {
			out = append(out, svc)
		}
	}
	return out
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.services)
}

// GetServices fetches /get_services and normalizes it into a Catalog.
func (c *Client) GetServices(ctx context.Context) (*Catalog, error) {
	var payload struct {
		Services map[string]struct {
			Name       string `json:"name"`
			Type       int    `json:"type"`
			TypePretty string `json:"type_pretty"`
			StarShape  string `json:"star_shape"`
			MinStars   int    `json:"min_stars"`
			MaxStars   int    `json:"max_stars"`
		} `json:"services"`
	}
	if err := c.get(ctx, "/get_services", nil, &payload); err != nil {
		return nil, err
	}

	services := make([]Service, 0, len(payload.Services))
	for key, data := range payload.Services {
		services = append(services, Service{
			ServiceKey: key,
			Name:       data.Name,
			Type:       data.Type,
			TypePretty: data.TypePretty,
			StarShape:  data.StarShape,
			MinStars:   data.MinStars,
			MaxStars:   data.MaxStars,
		})
	}
	sort.Slice(services, func(i, j int) bool {
		if services[i].Name != services[j].Name {
			return services[i].Name < services[j].Name
		}
		return services[i].ServiceKey < services[j].ServiceKey
	})
	return NewCatalog(services), nil
}
