// Package clinical looks up clinical trials on the ClinicalTrials.gov v2
// registry, falling back to a local dataset when the registry is unreachable.
package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aiox-platform/gloser/internal/source"
)

const requestedFields = "NCTId,BriefTitle,OverallStatus,Phase,LocationCountry,LeadSponsorName"

// Fallback serves trials from a local dataset.
type Fallback interface {
	Match(ctx context.Context, kind source.Kind, query string) ([]source.Fields, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	UseAPI     bool
	PageSize   int
	Timeout    time.Duration
	HTTPClient *http.Client
	Fallback   Fallback
}

// Client is the clinical-trial source collaborator.
type Client struct {
	baseURL  string
	useAPI   bool
	pageSize int
	http     *http.Client
	fallback Fallback
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		useAPI:   opts.UseAPI,
		pageSize: opts.PageSize,
		http:     hc,
		fallback: opts.Fallback,
	}
}

// Lookup queries the registry and falls back to the local dataset on any
// registry failure. An error is returned only when both paths fail.
func (c *Client) Lookup(ctx context.Context, query string) (source.Result, error) {
	condition, country := ParseQuery(query)

	apiErr := errors.New("API disabled")
	if c.useAPI {
		rows, err := c.fetch(ctx, condition, country)
		if err == nil {
			summary := fmt.Sprintf("Clinical Agent (API) returned %d records for '%s' (country=%s).",
				len(rows), condition, countryLabel(country))
			return source.NewResult(source.Clinical, rows, summary), nil
		}
		apiErr = err
		slog.Warn("clinical: registry lookup failed, using local dataset", "condition", condition, "error", err)
	}

	if c.fallback == nil {
		return source.Result{}, fmt.Errorf("no local clinical dataset; API error: %w", apiErr)
	}
	rows, err := c.fallback.Match(ctx, source.Clinical, query)
	if err != nil {
		return source.Result{}, fmt.Errorf("%v; API error: %v", err, apiErr)
	}
	summary := fmt.Sprintf("Clinical Agent (local) found %d trials for '%s'. (API error: %v)", len(rows), condition, apiErr)
	return source.NewResult(source.Clinical, rows, summary), nil
}

func countryLabel(country string) string {
	if country == "" {
		return "None"
	}
	return country
}

type studiesResponse struct {
	Studies []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus string `json:"overallStatus"`
			} `json:"statusModule"`
			DesignModule struct {
				Phases []string `json:"phases"`
			} `json:"designModule"`
			SponsorCollaboratorsModule struct {
				LeadSponsor struct {
					Name string `json:"name"`
				} `json:"leadSponsor"`
			} `json:"sponsorCollaboratorsModule"`
			ContactsLocationsModule struct {
				Locations []struct {
					Country string `json:"country"`
				} `json:"locations"`
			} `json:"contactsLocationsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

func (c *Client) fetch(ctx context.Context, condition, country string) ([]source.Fields, error) {
	params := url.Values{}
	params.Set("query.cond", condition)
	params.Set("fields", requestedFields)
	params.Set("pageSize", strconv.Itoa(c.pageSize))
	params.Set("countTotal", "true")
	if country != "" {
		params.Set("query.locn", country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var body studiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}

	rows := make([]source.Fields, 0, len(body.Studies))
	for _, s := range body.Studies {
		p := s.ProtocolSection

		seen := make(map[string]bool)
		var countries []string
		for _, loc := range p.ContactsLocationsModule.Locations {
			if loc.Country != "" && !seen[loc.Country] {
				seen[loc.Country] = true
				countries = append(countries, loc.Country)
			}
		}
		sort.Strings(countries)

		row := source.Fields{
			"NCTId":           p.IdentificationModule.NCTID,
			"BriefTitle":      p.IdentificationModule.BriefTitle,
			"OverallStatus":   p.StatusModule.OverallStatus,
			"Phase":           strings.Join(p.DesignModule.Phases, ", "),
			"LeadSponsorName": p.SponsorCollaboratorsModule.LeadSponsor.Name,
			"LocationCountry": strings.Join(countries, ","),
		}
		rows = append(rows, row)
	}
	return rows, nil
}
