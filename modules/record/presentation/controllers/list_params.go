package controllers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const (
	ConfigRecordListMaxSizeLimit = "recordListMaxSizeLimit"
	ConfigExportDisabled         = "exportDisabled"

	DefaultRecordListMaxSizeLimit = 200
)

// NormalizeListQuery turns list/search query parameters into a ListQuery.
// list, listKanban and listLinked all go through this function.
func NormalizeListQuery(q url.Values, maxSizeLimit int) (types.ListQuery, error) {
	var out types.ListQuery

	out.MaxSize = maxSizeLimit
	if raw := strings.TrimSpace(q.Get("maxSize")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return types.ListQuery{}, httperr.NewBadRequest("invalid maxSize")
		}
		if n > maxSizeLimit {
			return types.ListQuery{}, httperr.NewForbidden(fmt.Sprintf("Max size should not exceed %d. Use offset and limit.", maxSizeLimit))
		}
		if n > 0 {
			out.MaxSize = n
		}
	}

	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return types.ListQuery{}, httperr.NewBadRequest("invalid offset")
		}
		out.Offset = &n
	}

	out.Asc = true
	if _, ok := q["asc"]; ok {
		out.Asc = q.Get("asc") == "true"
	}

	if sortBy := strings.TrimSpace(firstOf(q, "sortBy", "orderBy")); sortBy != "" {
		out.SortBy = sortBy
	}

	if raw := strings.TrimSpace(q.Get("where")); raw != "" {
		w, err := types.ParseWhere([]byte(raw))
		if err != nil {
			return types.ListQuery{}, err
		}
		out.Where = w
	}

	out.TextFilter = strings.TrimSpace(firstOf(q, "textFilter", "q"))
	out.PrimaryFilter = strings.TrimSpace(q.Get("primaryFilter"))
	out.BoolFilterList = listParam(q, "boolFilterList")
	out.FilterList = listParam(q, "filterList")

	if raw := strings.TrimSpace(q.Get("select")); raw != "" {
		out.Select = splitList(raw)
		out.SkipCurrencyConvertedParams = true
	}

	return out, nil
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// listParam collects name=a&name=b, name[]=a and name=a,b forms. It returns
// nil when nothing non-empty was given.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, key := range []string{name, name + "[]"} {
		for _, v := range q[key] {
			out = append(out, splitList(v)...)
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
