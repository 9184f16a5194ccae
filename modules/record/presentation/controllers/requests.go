package controllers

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

type massTargetRequest struct {
	IDs        []string          `json:"ids"`
	Where      json.RawMessage   `json:"where"`
	SelectData *types.SelectData `json:"selectData"`
	ByWhere    bool              `json:"byWhere"`
}

// target applies the mass target rule: the predicate is used only when
// byWhere is set and where is present, and then it wins over ids.
func (r massTargetRequest) target() (types.MassTarget, error) {
	if r.ByWhere && isPresent(r.Where) {
		w, err := types.ParseWhere(r.Where)
		if err != nil {
			return types.MassTarget{}, err
		}
		return types.MassTarget{Where: w, SelectData: r.SelectData, ByWhere: true}, nil
	}
	return types.MassTarget{IDs: r.IDs}, nil
}

type exportRequest struct {
	massTargetRequest
	AttributeList []string `json:"attributeList"`
	FieldList     []string `json:"fieldList"`
	Format        string   `json:"format"`
}

type massUpdateRequest struct {
	massTargetRequest
	Attributes map[string]any `json:"attributes"`
}

type linkRequest struct {
	ID         string            `json:"id"`
	IDs        []string          `json:"ids"`
	MassRelate bool              `json:"massRelate"`
	Where      json.RawMessage   `json:"where"`
	SelectData *types.SelectData `json:"selectData"`
}

// foreignIDs merges id and ids, dropping blanks and repeats.
func (r linkRequest) foreignIDs() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, id := range append([]string{r.ID}, r.IDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type mergeRequest struct {
	TargetID   string          `json:"targetId"`
	SourceIDs  []string        `json:"sourceIds"`
	Attributes json.RawMessage `json:"attributes"`
}

func (r mergeRequest) validate() (types.MergeRequest, error) {
	if strings.TrimSpace(r.TargetID) == "" || len(r.SourceIDs) == 0 || !isObject(r.Attributes) {
		return types.MergeRequest{}, httperr.NewBadRequest("targetId, sourceIds and attributes are required")
	}
	var attrs map[string]any
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return types.MergeRequest{}, httperr.NewBadRequest("invalid attributes")
	}
	return types.MergeRequest{TargetID: strings.TrimSpace(r.TargetID), SourceIDs: r.SourceIDs, Attributes: attrs}, nil
}

type duplicateRequest struct {
	ID string `json:"id"`
}

func decodeBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return httperr.NewBadRequest("bad json")
	}
	return nil
}

func decodeObject(body []byte) (map[string]any, error) {
	if !isObject(body) {
		return nil, httperr.NewBadRequest("body must be a JSON object")
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, httperr.NewBadRequest("bad json")
	}
	return out, nil
}

func isPresent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
