// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pagination holds the page links of a listing.
type Pagination struct {
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	TotalItems  int64            `json:"total_items"`
	PerPage     int              `json:"per_page"`
	PrevURL     string           `json:"prev_url,omitempty"`
	NextURL     string           `json:"next_url,omitempty"`
	Pages       []PaginationPage `json:"pages"`
}

// PaginationPage is a single page link; ellipsis entries have no number.
type PaginationPage struct {
	Number     int    `json:"number,omitempty"`
	URL        string `json:"url,omitempty"`
	IsCurrent  bool   `json:"is_current,omitempty"`
	IsEllipsis bool   `json:"is_ellipsis,omitempty"`
}

// BuildPagination creates page links for baseURL, keeping every non-empty
// query parameter except page. A page past the end has no next link.
func BuildPagination(currentPage int, totalItems int64, perPage int, baseURL string, queryParams url.Values) Pagination {
	totalPages := CalculateTotalPages(totalItems, perPage)
	if currentPage < 1 {
		currentPage = 1
	}

	params := make(url.Values)
	for k, v := range queryParams {
		if k != "page" && len(v) > 0 && v[0] != "" {
			params[k] = v
		}
	}
	buildURL := func(page int) string {
		params.Set("page", strconv.Itoa(page))
		return fmt.Sprintf("%s?%s", baseURL, params.Encode())
	}

	p := Pagination{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		PerPage:     perPage,
		Pages:       []PaginationPage{},
	}
	if currentPage > 1 {
		p.PrevURL = buildURL(min(currentPage-1, totalPages))
	}
	if currentPage < totalPages {
		p.NextURL = buildURL(currentPage + 1)
	}

	// Show max 5 pages around current with ellipsis
	start := currentPage - 2
	end := currentPage + 2
	if start < 1 {
		start = 1
		end = 5
	}
	if end > totalPages {
		end = totalPages
		start = max(end-4, 1)
	}

	if start > 1 {
		p.Pages = append(p.Pages, PaginationPage{Number: 1, URL: buildURL(1)})
		if start > 2 {
			p.Pages = append(p.Pages, PaginationPage{IsEllipsis: true})
		}
	}
	for i := start; i <= end; i++ {
		p.Pages = append(p.Pages, PaginationPage{
			Number:    i,
			URL:       buildURL(i),
			IsCurrent: i == currentPage,
		})
	}
	if end < totalPages {
		if end < totalPages-1 {
			p.Pages = append(p.Pages, PaginationPage{IsEllipsis: true})
		}
		p.Pages = append(p.Pages, PaginationPage{Number: totalPages, URL: buildURL(totalPages)})
	}

	return p
}

// CalculateTotalPages returns the page count for totalItems, at least 1.
func CalculateTotalPages(totalItems int64, perPage int) int {
	if perPage <= 0 || totalItems <= 0 {
		return 1
	}
	return int((totalItems + int64(perPage) - 1) / int64(perPage))
}

// parsePage reads a 1-based page number; anything unparsable is page 1.
func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
