package core

import (
	"net/url"
	"sort"
	"strings"
)

// Actions a DocumentQR link can open.
const (
	ActionView           = "view"
	ActionEdit           = "edit"
	ActionPrint          = "print"
	ActionEmail          = "email"
	ActionNewStockEntry  = "new_stock_entry"
	ActionMaintenanceLog = "maintenance_log"
	ActionAssetRepair    = "asset_repair"
	ActionStockBalance   = "stock_balance"
	ActionViewLedger     = "view_ledger"
)

type routeFunc func(targetType, name string) string

// actionRoutes is the single action -> route table used for both direct
// payloads and token destinations.
var actionRoutes = map[string]routeFunc{
	ActionView: func(dt, dn string) string {
		return "/app/" + Slug(dt) + "/" + url.PathEscape(dn)
	},
	ActionEdit: func(dt, dn string) string {
		return "/app/" + Slug(dt) + "/" + url.PathEscape(dn) + "?edit=1"
	},
	ActionPrint: func(dt, dn string) string {
		return "/app/print/" + url.PathEscape(dt) + "/" + url.PathEscape(dn)
	},
	ActionEmail: func(dt, dn string) string {
		return "/app/email/" + url.PathEscape(dt) + "/" + url.PathEscape(dn)
	},
	ActionNewStockEntry: func(dt, dn string) string {
		return "/app/stock-entry/new-stock-entry-1?" + query("reference_doctype", dt, "reference_name", dn)
	},
	ActionMaintenanceLog: func(_, dn string) string {
		return "/app/asset-maintenance-log/new-asset-maintenance-log-1?" + query("asset", dn)
	},
	ActionAssetRepair: func(_, dn string) string {
		return "/app/asset-repair/new-asset-repair-1?" + query("asset", dn)
	},
	ActionStockBalance: func(_, dn string) string {
		return "/app/query-report/Stock%20Balance?" + query("item_code", dn)
	},
	ActionViewLedger: func(_, dn string) string {
		return "/app/query-report/Stock%20Ledger?" + query("item_code", dn)
	},
}

// defaultActions lists target types whose natural landing page is not the form view.
var defaultActions = map[string]string{
	"Item":      ActionStockBalance,
	"Warehouse": ActionStockBalance,
}

// KnownAction reports whether action has a route template.
func KnownAction(action string) bool {
	_, ok := actionRoutes[action]
	return ok
}

// DefaultAction returns the action used when a mint request names none.
func DefaultAction(targetType string) string {
	if a, ok := defaultActions[targetType]; ok {
		return a
	}
	return ActionView
}

// ActionRoute renders the route for action; unknown actions fall back to view.
func ActionRoute(action, targetType, name string) string {
	fn, ok := actionRoutes[action]
	if !ok {
		fn = actionRoutes[ActionView]
	}
	return fn(targetType, name)
}

// FormRoute is the generic "open record" route.
func FormRoute(targetType, name string) string {
	return ActionRoute(ActionView, targetType, name)
}

// Slug turns a target type into its route segment ("Sales Order" -> "sales-order").
func Slug(targetType string) string {
	s := strings.ToLower(strings.TrimSpace(targetType))
	s = strings.ReplaceAll(s, "_", "-")
	return url.PathEscape(strings.Join(strings.Fields(s), "-"))
}

// AppendParams merges params into raw's query string, choosing "?" or "&"
// depending on whether raw already carries a query. Keys are sorted.
func AppendParams(raw string, params map[string]string) string {
	if len(params) == 0 {
		return raw
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + strings.Join(pairs, "&")
}

// Absolutize returns u unchanged when it already carries an http(s) scheme,
// otherwise joins it to base.
func Absolutize(base, u string) string {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	base = strings.TrimRight(base, "/")
	if u == "" {
		return base + "/"
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return base + u
}

func query(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[i+1]))
	}
	return b.String()
}
