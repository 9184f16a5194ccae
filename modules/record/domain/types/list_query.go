package types

// ListQuery is the normalized list/search parameter set shared by every
// list-shaped operation. Zero values mean "absent".
type ListQuery struct {
	Where          Where    `json:"where,omitempty"`
	Offset         *int     `json:"offset,omitempty"`
	MaxSize        int      `json:"maxSize"`
	Asc            bool     `json:"asc"`
	SortBy         string   `json:"sortBy,omitempty"`
	TextFilter     string   `json:"textFilter,omitempty"`
	PrimaryFilter  string   `json:"primaryFilter,omitempty"`
	BoolFilterList []string `json:"boolFilterList,omitempty"`
	FilterList     []string `json:"filterList,omitempty"`
	Select         []string `json:"select,omitempty"`

	SkipCurrencyConvertedParams bool `json:"skipCurrencyConvertedParams,omitempty"`
}

func (q ListQuery) OffsetValue() int {
	if q.Offset == nil {
		return 0
	}
	return *q.Offset
}

// FindResult carries either pre-resolved value maps in List or raw entities
// in Collection. AdditionalData is only set by kanban listings.
type FindResult struct {
	Total          int
	List           []map[string]any
	Collection     []*Entity
	AdditionalData any
}

type KanbanGroup struct {
	Name  string           `json:"name"`
	Total int              `json:"total"`
	List  []map[string]any `json:"list"`
}

type KanbanData struct {
	GroupList []KanbanGroup `json:"groupList"`
}
