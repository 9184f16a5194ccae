package types

// SelectData is a saved selection that narrows a predicate target.
type SelectData struct {
	PrimaryFilter  string   `json:"primaryFilter,omitempty"`
	BoolFilterList []string `json:"boolFilterList,omitempty"`
	TextFilter     string   `json:"textFilter,omitempty"`
	Where          Where    `json:"where,omitempty"`
}

// MassTarget selects the records of a mass operation: an explicit id set, or a
// predicate evaluated when the operation executes.
type MassTarget struct {
	IDs        []string
	Where      Where
	SelectData *SelectData
	ByWhere    bool
}

func (t MassTarget) UsesPredicate() bool {
	return t.ByWhere && t.Where != nil
}

func (t MassTarget) IsEmpty() bool {
	return !t.UsesPredicate() && len(t.IDs) == 0
}

type MassResult struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

type MergeRequest struct {
	TargetID   string
	SourceIDs  []string
	Attributes map[string]any
}

type ExportParams struct {
	Target        MassTarget
	AttributeList []string
	FieldList     []string
	Format        string
}

type DuplicateResult struct {
	ID         string              `json:"id"`
	Duplicates map[string][]string `json:"duplicates"`
	Attributes map[string]any      `json:"attributes"`
}
