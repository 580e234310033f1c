package newsapi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MaxPageSize is the largest page the upstream API serves per call.
const MaxPageSize = 100

var ErrInvalidParams = errors.New("invalid headline params")

// Params is one top-headlines query. The upstream API accepts a single value
// per axis and refuses Source together with Country or Category.
type Params struct {
	Query    string
	Country  string
	Category string
	Source   string
	Language string
	Page     int
	PageSize int
}

func (p Params) Validate() error {
	if p.Source != "" && (p.Country != "" || p.Category != "") {
		return fmt.Errorf("%w: source cannot be combined with country or category", ErrInvalidParams)
	}
	if p.PageSize < 0 || p.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidParams, MaxPageSize)
	}
	if p.Page < 0 {
		return fmt.Errorf("%w: page must be positive", ErrInvalidParams)
	}
	return nil
}

// Normalized fills the page defaults.
func (p Params) Normalized() Params {
	if p.PageSize == 0 {
		p.PageSize = MaxPageSize
	}
	if p.Page == 0 {
		p.Page = 1
	}
	return p
}

// HasAxis reports whether any filter axis is set.
func (p Params) HasAxis() bool {
	return p.Country != "" || p.Category != "" || p.Source != ""
}

func (p Params) Values() url.Values {
	p = p.Normalized()
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("q", p.Query)
	set("country", p.Country)
	set("category", p.Category)
	set("sources", p.Source)
	set("language", p.Language)
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("pageSize", strconv.Itoa(p.PageSize))
	return v
}

// String renders the set axes, e.g. "country=us category=business".
func (p Params) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("q", p.Query)
	add("country", p.Country)
	add("category", p.Category)
	add("sources", p.Source)
	add("language", p.Language)
	if len(parts) == 0 {
		return "unfiltered"
	}
	return strings.Join(parts, " ")
}
