package rpc

import (
	"encoding/json"

	"github.com/crclabs/backingd/internal/storage/eventdb"
)

const defaultEventLimit = 100

type eventsMethod struct{ backend Backend }

func (m *eventsMethod) RequiredRole() Role { return RoleGuest }

func (m *eventsMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	if m.backend.Events == nil {
		return nil, NewError(CodeInternal, "Event index not configured")
	}

	var req struct {
		Instance string `json:"instance,omitempty"`
		Name     string `json:"name,omitempty"`
		Limit    int    `json:"limit,omitempty"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, ErrInvalidParams("Invalid params: " + err.Error())
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultEventLimit
	}

	var (
		recs []eventdb.Record
		err  error
	)
	switch {
	case req.Instance != "":
		addr, rpcErr := parseAddress("instance", req.Instance)
		if rpcErr != nil {
			return nil, rpcErr
		}
		recs, err = m.backend.Events.ByInstance(ctx.Context, addr, req.Limit)
	case req.Name != "":
		recs, err = m.backend.Events.ByName(ctx.Context, req.Name, req.Limit)
	default:
		recs, err = m.backend.Events.Recent(ctx.Context, req.Limit)
	}
	if err != nil {
		return nil, NewError(CodeInternal, err.Error())
	}

	events := make([]map[string]any, len(recs))
	for i, rec := range recs {
		events[i] = map[string]any{
			"seq":        rec.Seq,
			"name":       rec.Name,
			"instance":   rec.Instance.Hex(),
			"payload":    rec.Payload,
			"created_at": rec.CreatedAt.Unix(),
		}
	}
	return map[string]any{
		"count":  len(events),
		"events": events,
	}, nil
}
