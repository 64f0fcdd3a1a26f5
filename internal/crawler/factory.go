package crawler

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sjsage522/pricescout/config"
	"sjsage522/pricescout/logger"
	apperrors "sjsage522/pricescout/pkg/errors"
)

// DefaultSources returns the built-in source definitions
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			ID:        SourceAmazon,
			BaseURL:   "https://www.amazon.com",
			SearchURL: "https://www.amazon.com/s?k={query}",
			Currency:  "USD",
			Rules: Rules{
				Containers: []string{
					"div[data-component-type='s-search-result']",
					"div.sg-col-4-of-12",
					"div.sg-col-20-of-24",
				},
				Title: []string{"h2 span.a-text-normal", "span.a-text-normal", "h2.a-size-mini", "h2"},
				// a-offscreen holds the full price; a-price-whole only the integer part
				Price: []string{"span.a-price span.a-offscreen", "span.a-offscreen", "span.a-price-whole", "span.a-price"},
				Link:  []string{"h2 a.a-link-normal", "a.a-link-normal"},
			},
		},
		{
			ID:        SourceEbay,
			BaseURL:   "https://www.ebay.com",
			SearchURL: "https://www.ebay.com/sch/i.html?_nkw={query}",
			Currency:  "USD",
			Rules: Rules{
				Containers: []string{"li.s-item", "div.s-item__info", "div.srp-river-result"},
				Title:      []string{"div.s-item__title", "h3.s-item__title", "span[role='heading']"},
				Price:      []string{"span.s-item__price"},
				Link:       []string{"a.s-item__link"},
			},
		},
		{
			ID:        SourceJumia,
			BaseURL:   "https://www.jumia.co.ke",
			SearchURL: "https://www.jumia.co.ke/catalog/?q={query}",
			Currency:  "KES",
			Rules: Rules{
				Containers: []string{"article.prd", "div.info"},
				Title:      []string{"h3.name", "div.name"},
				Price:      []string{"div.prc"},
				Link:       []string{"a.core", "a[href]"},
			},
		},
		{
			ID:        SourceKilimall,
			BaseURL:   "https://www.kilimall.co.ke",
			SearchURL: "https://www.kilimall.co.ke/new/commoditysearch?q={query}",
			Currency:  "KES",
			Rules: Rules{
				Containers: []string{"div.item_box", "li.item", "div.product-item"},
				Title:      []string{"div.goods-name", "p.product-title"},
				Price:      []string{"div.price", "div.product-price"},
				Link:       []string{"a.goods-name-link", "a[href]"},
			},
		},
	}
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfiguration("failed to read sources file", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfiguration("failed to decode sources file", err)
	}

	if err := ValidateSources(file.Sources); err != nil {
		return nil, err
	}
	return file.Sources, nil
}

// ValidateSources rejects definitions the rule interpreter cannot use
func ValidateSources(sources []SourceConfig) error {
	if len(sources) == 0 {
		return apperrors.ErrNoSources
	}

	seen := make(map[SourceID]bool, len(sources))
	for i, src := range sources {
		if src.ID == "" {
			return apperrors.NewConfiguration(fmt.Sprintf("source #%d has no id", i), nil)
		}
		if seen[src.ID] {
			return apperrors.NewConfiguration(fmt.Sprintf("duplicate source id %q", src.ID), nil)
		}
		seen[src.ID] = true

		base, err := url.Parse(src.BaseURL)
		if err != nil || !base.IsAbs() {
			return apperrors.NewConfiguration(fmt.Sprintf("source %q has an invalid base_url", src.ID), err)
		}
		if !strings.Contains(src.SearchURL, "{query}") {
			return apperrors.NewConfiguration(fmt.Sprintf("source %q search_url lacks a {query} placeholder", src.ID), nil)
		}
		if len(src.Currency) != 3 {
			return apperrors.NewConfiguration(fmt.Sprintf("source %q currency must be a 3-letter code", src.ID), nil)
		}
		if len(src.Rules.Containers) == 0 || len(src.Rules.Title) == 0 || len(src.Rules.Price) == 0 {
			return apperrors.NewConfiguration(fmt.Sprintf("source %q needs container, title and price rules", src.ID), nil)
		}
	}
	return nil
}

// CreateSources returns the sources from cfg.SourcesFile, or the built-in ones
// when no file is configured
func CreateSources(cfg *config.Config) ([]SourceConfig, error) {
	log := logger.ForCoordinator()

	if cfg.SourcesFile == "" {
		sources := DefaultSources()
		log.Debug().Int("count", len(sources)).Msg("Using built-in sources")
		return sources, nil
	}

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		log.Debug().
			Str("source", string(src.ID)).
			Str("base_url", src.BaseURL).
			Msg("Loaded source")
	}
	return sources, nil
}
