package controllers

import (
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

func TestNormalizeListQuery_MaxSize(t *testing.T) {
	_, err := NormalizeListQuery(url.Values{"maxSize": {"500"}}, 200)
	if !httperr.IsForbidden(err) {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "200") {
		t.Fatalf("message=%q", err.Error())
	}

	q, err := NormalizeListQuery(url.Values{"maxSize": {"50"}}, 200)
	if err != nil || q.MaxSize != 50 {
		t.Fatalf("q=%+v err=%v", q, err)
	}
	q, err = NormalizeListQuery(url.Values{"maxSize": {""}}, 200)
	if err != nil || q.MaxSize != 200 {
		t.Fatalf("q=%+v err=%v", q, err)
	}
	q, err = NormalizeListQuery(url.Values{}, 75)
	if err != nil || q.MaxSize != 75 {
		t.Fatalf("q=%+v err=%v", q, err)
	}
	q, err = NormalizeListQuery(url.Values{"maxSize": {"200"}}, 200)
	if err != nil || q.MaxSize != 200 {
		t.Fatalf("q=%+v err=%v", q, err)
	}
	for _, bad := range []string{"ten", "-1", "1.5"} {
		if _, err := NormalizeListQuery(url.Values{"maxSize": {bad}}, 200); !httperr.IsBadRequest(err) {
			t.Fatalf("maxSize=%q err=%v", bad, err)
		}
	}
}

func TestNormalizeListQuery_Asc(t *testing.T) {
	cases := []struct {
		q    url.Values
		want bool
	}{
		{q: url.Values{}, want: true},
		{q: url.Values{"asc": {"true"}}, want: true},
		{q: url.Values{"asc": {"false"}}, want: false},
		{q: url.Values{"asc": {"TRUE"}}, want: false},
		{q: url.Values{"asc": {"1"}}, want: false},
		{q: url.Values{"asc": {""}}, want: false},
		{q: url.Values{"asc": {" true"}}, want: false},
	}
	for _, tc := range cases {
		q, err := NormalizeListQuery(tc.q, 200)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if q.Asc != tc.want {
			t.Fatalf("in=%v asc=%v want %v", tc.q, q.Asc, tc.want)
		}
	}
}

func TestNormalizeListQuery_Select(t *testing.T) {
	q, err := NormalizeListQuery(url.Values{"select": {"a,b,c"}}, 200)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !slices.Equal(q.Select, []string{"a", "b", "c"}) || !q.SkipCurrencyConvertedParams {
		t.Fatalf("q=%+v", q)
	}

	q, err = NormalizeListQuery(url.Values{"select": {"a, b,,a"}}, 200)
	if err != nil || !slices.Equal(q.Select, []string{"a", "b"}) {
		t.Fatalf("q=%+v err=%v", q, err)
	}

	q, err = NormalizeListQuery(url.Values{}, 200)
	if err != nil || q.Select != nil || q.SkipCurrencyConvertedParams {
		t.Fatalf("q=%+v err=%v", q, err)
	}
}

func TestNormalizeListQuery_OptionalFilters(t *testing.T) {
	q, err := NormalizeListQuery(url.Values{"primaryFilter": {""}, "boolFilterList": {""}}, 200)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if q.PrimaryFilter != "" || q.BoolFilterList != nil || q.FilterList != nil || q.Offset != nil || q.Where != nil {
		t.Fatalf("q=%+v", q)
	}

	q, err = NormalizeListQuery(url.Values{
		"primaryFilter":    {"active"},
		"boolFilterList[]": {"onlyMy"},
		"boolFilterList":   {"followed,onlyMy"},
		"filterList":       {"a", "b"},
		"offset":           {"20"},
		"sortBy":           {"name"},
		"q":                {"acme"},
		"where":            {`[{"type":"equals","attribute":"status","value":"open"}]`},
	}, 200)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if q.PrimaryFilter != "active" || q.SortBy != "name" || q.TextFilter != "acme" || q.OffsetValue() != 20 {
		t.Fatalf("q=%+v", q)
	}
	if !slices.Equal(q.BoolFilterList, []string{"followed", "onlyMy", "onlyMy"}) {
		t.Fatalf("boolFilterList=%v", q.BoolFilterList)
	}
	if !slices.Equal(q.FilterList, []string{"a", "b"}) {
		t.Fatalf("filterList=%v", q.FilterList)
	}
	if len(q.Where) != 1 || q.Where[0].Type != types.WhereEquals || q.Where[0].Value != "open" {
		t.Fatalf("where=%+v", q.Where)
	}

	for _, bad := range []url.Values{
		{"offset": {"-3"}},
		{"offset": {"x"}},
		{"where": {`{"type":"equals"}`}},
	} {
		if _, err := NormalizeListQuery(bad, 200); !httperr.IsBadRequest(err) {
			t.Fatalf("in=%v err=%v", bad, err)
		}
	}
}
