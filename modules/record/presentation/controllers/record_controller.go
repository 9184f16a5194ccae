package controllers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/modules/record/domain/types"
	"github.com/jacksonlee411/recordhub/modules/record/services"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const (
	ActionRead                   = "read"
	ActionCreate                 = "create"
	ActionUpdate                 = "update"
	ActionDelete                 = "delete"
	ActionList                   = "list"
	ActionListKanban             = "listKanban"
	ActionListLinked             = "listLinked"
	ActionExport                 = "export"
	ActionMassUpdate             = "massUpdate"
	ActionMassDelete             = "massDelete"
	ActionCreateLink             = "createLink"
	ActionRemoveLink             = "removeLink"
	ActionFollow                 = "follow"
	ActionUnfollow               = "unfollow"
	ActionMerge                  = "merge"
	ActionGetDuplicateAttributes = "getDuplicateAttributes"
	ActionMassFollow             = "massFollow"
	ActionMassUnfollow           = "massUnfollow"
)

type PathParams struct {
	EntityType string
	ID         string
	Link       string
}

type Request struct {
	Method string
	Query  url.Values
}

type actionFunc func(c RecordController, ctx context.Context, p PathParams, body []byte, req Request) (any, error)

var actions = map[string]actionFunc{
	ActionRead:                   RecordController.Read,
	ActionCreate:                 RecordController.Create,
	ActionUpdate:                 RecordController.Update,
	ActionDelete:                 RecordController.Delete,
	ActionList:                   RecordController.List,
	ActionListKanban:             RecordController.ListKanban,
	ActionListLinked:             RecordController.ListLinked,
	ActionExport:                 RecordController.Export,
	ActionMassUpdate:             RecordController.MassUpdate,
	ActionMassDelete:             RecordController.MassDelete,
	ActionCreateLink:             RecordController.CreateLink,
	ActionRemoveLink:             RecordController.RemoveLink,
	ActionFollow:                 RecordController.Follow,
	ActionUnfollow:               RecordController.Unfollow,
	ActionMerge:                  RecordController.Merge,
	ActionGetDuplicateAttributes: RecordController.GetDuplicateAttributes,
	ActionMassFollow:             RecordController.MassFollow,
	ActionMassUnfollow:           RecordController.MassUnfollow,
}

// RecordController dispatches record actions for any entity type. Method
// checks run before permission checks, and permission checks run before any
// service call.
type RecordController struct {
	Services ports.ServiceResolver
	Access   ports.AccessChecker
	Config   ports.ConfigReader
	Logger   *slog.Logger
}

// Dispatch runs the named action. Unknown actions are BadRequest.
func (c RecordController) Dispatch(ctx context.Context, action string, p PathParams, body []byte, req Request) (any, error) {
	fn, ok := actions[action]
	if !ok {
		return nil, httperr.NewBadRequest(fmt.Sprintf("unknown action %q", action))
	}
	out, err := fn(c, ctx, p, body, req)
	if err != nil {
		if status, _ := httperr.Status(err); status >= http.StatusInternalServerError {
			c.logger().ErrorContext(ctx, "record action failed",
				slog.String("entity_type", p.EntityType),
				slog.String("action", action),
				slog.String("tenant", tenantOf(ctx)),
				slog.Any("err", err),
			)
		}
		return nil, err
	}
	return out, nil
}

func (c RecordController) Read(ctx context.Context, p PathParams, _ []byte, _ Request) (any, error) {
	if p.ID == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	if !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	e, err := svc.ReadEntity(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, httperr.NewNotFound("")
	}
	return e.ValueMap(), nil
}

func (c RecordController) Create(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	data, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	if !c.check(ctx, p.EntityType, ports.ActionCreate) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	e, err := svc.CreateEntity(ctx, data)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, httperr.NewError("")
	}
	return e.ValueMap(), nil
}

func (c RecordController) Update(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPut && req.Method != http.MethodPatch {
		return nil, methodMismatch()
	}
	if p.ID == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	data, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	if !c.check(ctx, p.EntityType, ports.ActionEdit) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	e, err := svc.UpdateEntity(ctx, p.ID, data)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, httperr.NewError("")
	}
	return e.ValueMap(), nil
}

func (c RecordController) Delete(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if req.Method != http.MethodDelete {
		return nil, methodMismatch()
	}
	if p.ID == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	if !c.check(ctx, p.EntityType, ports.ActionDelete) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	ok, err := svc.DeleteEntity(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.NewError("")
	}
	return true, nil
}

func (c RecordController) List(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	q, err := c.listQuery(req)
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	res, err := svc.FindEntities(ctx, q)
	if err != nil {
		return nil, err
	}
	return listResponse(res, false), nil
}

func (c RecordController) ListKanban(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	q, err := c.listQuery(req)
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	res, err := svc.GetListKanban(ctx, q)
	if err != nil {
		return nil, err
	}
	return listResponse(res, true), nil
}

// ListLinked leaves visibility of related records to the service.
func (c RecordController) ListLinked(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if p.ID == "" || p.Link == "" {
		return nil, httperr.NewBadRequest("id and link are required")
	}
	q, err := c.listQuery(req)
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	res, err := svc.FindLinkedEntities(ctx, p.ID, p.Link, q)
	if err != nil {
		return nil, err
	}
	return listResponse(res, false), nil
}

func (c RecordController) Export(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	var in exportRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	admin := c.isAdmin(ctx)
	if c.configBool(ConfigExportDisabled, false) && !admin {
		return nil, httperr.NewForbidden("export is disabled")
	}
	if c.setting(ctx, ports.SettingExportPermission) != "yes" && !admin {
		return nil, httperr.NewForbidden("no export permission")
	}
	if !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	target, err := in.target()
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	id, err := svc.Export(ctx, types.ExportParams{
		Target:        target,
		AttributeList: in.AttributeList,
		FieldList:     in.FieldList,
		Format:        in.Format,
	})
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, httperr.NewError("")
	}
	return map[string]any{"id": id}, nil
}

func (c RecordController) MassUpdate(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPut {
		return nil, methodMismatch()
	}
	if !c.check(ctx, p.EntityType, ports.ActionEdit) {
		return nil, httperr.NewForbidden("")
	}
	var in massUpdateRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	if len(in.Attributes) == 0 {
		return nil, httperr.NewBadRequest("attributes are required")
	}
	target, err := in.target()
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	ids, err := svc.MassUpdate(ctx, in.Attributes, target)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c RecordController) MassDelete(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	if !c.check(ctx, p.EntityType, ports.ActionDelete) {
		return nil, httperr.NewForbidden("")
	}
	var in massTargetRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	target, err := in.target()
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	return svc.MassRemove(ctx, target)
}

// CreateLink relates records either by predicate (massRelate) or by an
// explicit foreign id set. The explicit form passes when any link succeeds.
func (c RecordController) CreateLink(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	if p.ID == "" || p.Link == "" {
		return nil, httperr.NewBadRequest("id and link are required")
	}
	var in linkRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}

	if in.MassRelate {
		if !isArray(in.Where) {
			return nil, httperr.NewBadRequest("where must be an array")
		}
		where, err := types.ParseWhere(in.Where)
		if err != nil {
			return nil, err
		}
		svc, err := c.Services.Resolve(p.EntityType)
		if err != nil {
			return nil, err
		}
		return svc.LinkEntityMass(ctx, p.ID, p.Link, where, in.SelectData)
	}

	foreignIDs := in.foreignIDs()
	if len(foreignIDs) == 0 {
		return nil, httperr.NewBadRequest("id or ids is required")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	return c.anySuccess(ctx, p, ActionCreateLink, foreignIDs, func(foreignID string) (bool, error) {
		return svc.LinkEntity(ctx, p.ID, p.Link, foreignID)
	})
}

func (c RecordController) RemoveLink(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodDelete {
		return nil, methodMismatch()
	}
	if p.ID == "" || p.Link == "" {
		return nil, httperr.NewBadRequest("id and link are required")
	}
	var in linkRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	foreignIDs := in.foreignIDs()
	if len(foreignIDs) == 0 {
		return nil, httperr.NewBadRequest("id or ids is required")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	return c.anySuccess(ctx, p, ActionRemoveLink, foreignIDs, func(foreignID string) (bool, error) {
		return svc.UnlinkEntity(ctx, p.ID, p.Link, foreignID)
	})
}

func (c RecordController) anySuccess(ctx context.Context, p PathParams, action string, items []string, fn func(string) (bool, error)) (any, error) {
	outcomes, err := services.RunBatch(items, fn)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		if o.Err != nil {
			c.logger().WarnContext(ctx, "link item failed",
				slog.String("entity_type", p.EntityType),
				slog.String("action", action),
				slog.String("id", p.ID),
				slog.String("foreign_id", o.Item),
				slog.Any("err", o.Err),
			)
		}
	}
	if !services.Reduce(services.PolicyAny, outcomes) {
		return nil, httperr.NewError("")
	}
	return true, nil
}

func (c RecordController) Follow(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if req.Method != http.MethodPut {
		return nil, methodMismatch()
	}
	if p.ID == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	if !c.check(ctx, p.EntityType, ports.ActionStream) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	ok, err := svc.Follow(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.NewError("")
	}
	return true, nil
}

func (c RecordController) Unfollow(ctx context.Context, p PathParams, _ []byte, req Request) (any, error) {
	if req.Method != http.MethodDelete {
		return nil, methodMismatch()
	}
	if p.ID == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	if !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	ok, err := svc.Unfollow(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.NewError("")
	}
	return true, nil
}

// Merge validates the request shape before the permission check.
func (c RecordController) Merge(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	var in mergeRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	mr, err := in.validate()
	if err != nil {
		return nil, err
	}
	if !c.check(ctx, p.EntityType, ports.ActionEdit) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	ok, err := svc.Merge(ctx, mr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.NewError("")
	}
	return true, nil
}

func (c RecordController) GetDuplicateAttributes(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	var in duplicateRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ID) == "" {
		return nil, httperr.NewBadRequest("id is required")
	}
	if !c.check(ctx, p.EntityType, ports.ActionCreate) || !c.check(ctx, p.EntityType, ports.ActionRead) {
		return nil, httperr.NewForbidden("")
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	return svc.GetDuplicateAttributes(ctx, strings.TrimSpace(in.ID))
}

func (c RecordController) MassFollow(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	return c.massFollow(ctx, p, body, req, true)
}

func (c RecordController) MassUnfollow(ctx context.Context, p PathParams, body []byte, req Request) (any, error) {
	return c.massFollow(ctx, p, body, req, false)
}

func (c RecordController) massFollow(ctx context.Context, p PathParams, body []byte, req Request, follow bool) (any, error) {
	if req.Method != http.MethodPost {
		return nil, methodMismatch()
	}
	if !c.check(ctx, p.EntityType, ports.ActionStream) {
		return nil, httperr.NewForbidden("")
	}
	var in massTargetRequest
	if err := decodeBody(body, &in); err != nil {
		return nil, err
	}
	target, err := in.target()
	if err != nil {
		return nil, err
	}
	svc, err := c.Services.Resolve(p.EntityType)
	if err != nil {
		return nil, err
	}
	if follow {
		return svc.MassFollow(ctx, target)
	}
	return svc.MassUnfollow(ctx, target)
}

func (c RecordController) listQuery(req Request) (types.ListQuery, error) {
	limit := DefaultRecordListMaxSizeLimit
	if c.Config != nil {
		limit = c.Config.GetInt(ConfigRecordListMaxSizeLimit, DefaultRecordListMaxSizeLimit)
	}
	return NormalizeListQuery(req.Query, limit)
}

// listResponse keeps whichever list shape the service produced.
func listResponse(res types.FindResult, withAdditional bool) map[string]any {
	out := map[string]any{"total": res.Total}
	switch {
	case res.List != nil:
		out["list"] = res.List
	case res.Collection != nil:
		out["list"] = types.ValueMapList(res.Collection)
	default:
		out["list"] = []map[string]any{}
	}
	if withAdditional {
		out["additionalData"] = res.AdditionalData
	}
	return out
}

func (c RecordController) check(ctx context.Context, entityType string, action string) bool {
	if c.Access == nil {
		return false
	}
	return c.Access.Check(ctx, entityType, action)
}

func (c RecordController) isAdmin(ctx context.Context) bool {
	return c.Access != nil && c.Access.IsAdmin(ctx)
}

func (c RecordController) setting(ctx context.Context, name string) string {
	if c.Access == nil {
		return ""
	}
	return c.Access.Get(ctx, name)
}

func (c RecordController) configBool(key string, def bool) bool {
	if c.Config == nil {
		return def
	}
	return c.Config.GetBool(key, def)
}

func (c RecordController) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func methodMismatch() error {
	return httperr.NewBadRequest("method not allowed for action")
}

func tenantOf(ctx context.Context) string {
	a, _ := types.ActorFromContext(ctx)
	return a.TenantID
}
