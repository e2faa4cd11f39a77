package usecase

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
)

type ParamKind int

const (
	KindString ParamKind = iota
	KindInt
	KindBool
)

// Param declares one input of a proxied operation.
type Param struct {
	Name     string // local query or path name
	Upstream string // upstream query name, defaults to Name
	Kind     ParamKind
	Default  string
	Required bool
	InPath   bool
	// OmitEmpty drops the parameter from the upstream query when empty.
	OmitEmpty bool
	// Dynamic computes the default at request time. It also replaces an
	// explicit zero.
	Dynamic func(now time.Time) string
}

// Operation is a read-only market-data call mapped 1:1 onto an upstream GET.
type Operation struct {
	Name   string
	Path   string // upstream path, {name} segments filled from InPath params
	Params []Param
}

// ParamSource returns the raw value supplied for a parameter, if any.
type ParamSource func(name string) (string, bool)

// ParamsFromMap adapts a plain map to a ParamSource.
func ParamsFromMap(m map[string]string) ParamSource {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

func daysAgo(days int) func(time.Time) string {
	return func(now time.Time) string {
		return strconv.FormatInt(now.Add(-time.Duration(days)*24*time.Hour).Unix(), 10)
	}
}

func unixNow(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

var (
	coinIDParam       = Param{Name: "coin_id", InPath: true, Required: true}
	platformIDParam   = Param{Name: "platform_id", InPath: true, Required: true}
	vsCurrencyParam   = Param{Name: "vs_currency", Default: "usd"}
	daysParam         = Param{Name: "days", Kind: KindInt, Default: "7"}
	contractAddrParam = Param{Name: "contract_addresses", Required: true}
	vsCurrenciesParam = Param{Name: "vs_currencies", Required: true}
)

// Operations lists every proxied market-data call.
var Operations = []*Operation{
	{
		Name:   "coins_list",
		Path:   "/coins/list",
		Params: []Param{{Name: "include_platform", Kind: KindBool, Default: "false"}},
	},
	{Name: "supported_vs_currencies", Path: "/simple/supported_vs_currencies"},
	{Name: "trending", Path: "/search/trending"},
	{Name: "categories_list", Path: "/coins/categories/list"},
	{
		Name: "simple_price",
		Path: "/simple/price",
		Params: []Param{
			{Name: "ids", Required: true},
			vsCurrenciesParam,
		},
	},
	{
		Name:   "token_price",
		Path:   "/simple/token_price/{platform_id}",
		Params: []Param{platformIDParam, contractAddrParam, vsCurrenciesParam},
	},
	{
		Name: "coins_markets",
		Path: "/coins/markets",
		Params: []Param{
			vsCurrencyParam,
			{Name: "ids", OmitEmpty: true},
			{Name: "category", OmitEmpty: true},
			{Name: "order", Default: "market_cap_desc"},
			{Name: "per_page", Kind: KindInt, Default: "100"},
			{Name: "page", Kind: KindInt, Default: "1"},
			{Name: "sparkline", Kind: KindBool, Default: "false"},
			{Name: "price_change_percentage", Default: "24h"},
		},
	},
	{
		Name: "coin_detail",
		Path: "/coins/{coin_id}",
		Params: []Param{
			coinIDParam,
			{Name: "localization", Kind: KindBool, Default: "false"},
			{Name: "market_data", Kind: KindBool, Default: "true"},
		},
	},
	{
		Name: "coin_tickers",
		Path: "/coins/{coin_id}/tickers",
		Params: []Param{
			coinIDParam,
			{Name: "page", Kind: KindInt, Default: "1"},
		},
	},
	{
		Name: "market_chart",
		Path: "/coins/{coin_id}/market_chart",
		Params: []Param{
			coinIDParam,
			vsCurrencyParam,
			daysParam,
			{Name: "interval", Default: "daily"},
		},
	},
	{
		Name: "market_chart_range",
		Path: "/coins/{coin_id}/market_chart/range",
		Params: []Param{
			coinIDParam,
			vsCurrencyParam,
			{Name: "from_timestamp", Upstream: "from", Kind: KindInt, Dynamic: daysAgo(30)},
			{Name: "to_timestamp", Upstream: "to", Kind: KindInt, Dynamic: unixNow},
		},
	},
	{
		Name:   "coin_ohlc",
		Path:   "/coins/{coin_id}/ohlc",
		Params: []Param{coinIDParam, vsCurrencyParam, daysParam},
	},
	{
		Name: "token_market_chart",
		Path: "/coins/{platform_id}/contract/{contract_address}/market_chart",
		Params: []Param{
			platformIDParam,
			{Name: "contract_address", InPath: true, Required: true},
			vsCurrencyParam,
			daysParam,
		},
	},
	{
		Name:   "onchain_token_price",
		Path:   "/onchain/simple/token_price/{platform_id}",
		Params: []Param{platformIDParam, contractAddrParam, vsCurrenciesParam},
	},
	{Name: "global", Path: "/global"},
}

var operationsByName = func() map[string]*Operation {
	m := make(map[string]*Operation, len(Operations))
	for _, op := range Operations {
		m[op.Name] = op
	}
	return m
}()

func LookupOperation(name string) (*Operation, bool) {
	op, ok := operationsByName[name]
	return op, ok
}

// Bind resolves every declared parameter to its canonical string value, in
// declared order. Missing optional values take their default; values are
// coerced to the declared kind and re-formatted so equivalent inputs bind
// identically.
func (op *Operation) Bind(src ParamSource, now time.Time) ([]string, error) {
	values := make([]string, len(op.Params))
	for i, p := range op.Params {
		raw, ok := src(p.Name)
		if !ok || raw == "" {
			switch {
			case p.Dynamic != nil:
				values[i] = p.Dynamic(now)
			case p.Required:
				return nil, domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("missing required parameter %q", p.Name))
			default:
				values[i] = p.Default
			}
			continue
		}

		v, err := p.coerce(raw)
		if err != nil {
			return nil, err
		}
		if p.Dynamic != nil && v == "0" {
			v = p.Dynamic(now)
		}
		values[i] = v
	}
	return values, nil
}

func (p Param) coerce(raw string) (string, error) {
	switch p.Kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("parameter %q must be an integer", p.Name))
		}
		return strconv.FormatInt(n, 10), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", domain.NewError(domain.ErrInvalidArgument, fmt.Sprintf("parameter %q must be a boolean", p.Name))
		}
		return strconv.FormatBool(b), nil
	default:
		return raw, nil
	}
}

// UpstreamRequest maps bound values onto the upstream path and query.
func (op *Operation) UpstreamRequest(values []string) (string, url.Values) {
	path := op.Path
	query := url.Values{}
	for i, p := range op.Params {
		if p.InPath {
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(values[i]))
			continue
		}
		if p.OmitEmpty && values[i] == "" {
			continue
		}
		name := p.Upstream
		if name == "" {
			name = p.Name
		}
		query.Set(name, values[i])
	}
	return path, query
}
