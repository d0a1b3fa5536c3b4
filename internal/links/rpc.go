package links

import (
	"context"
	"encoding/json"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
)

// RegisterRPC exposes the service's methods on srv.
func RegisterRPC(srv *grpc.Server, s *Service) {
	srv.Register(proto.MethodAddLink, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.AddLinkRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		link, err := s.AddLink(ctx, req.URL, req.Description, req.Tags)
		if err != nil {
			return nil, err
		}
		return ToProto(link), nil
	})

	srv.Register(proto.MethodListLinks, func(ctx context.Context, _ json.RawMessage) (any, error) {
		links := s.ListLinks(ctx)
		resp := proto.ListLinksResponse{Data: make([]proto.Link, len(links))}
		for i, l := range links {
			resp.Data[i] = ToProto(l)
		}
		return resp, nil
	})

	srv.Register(proto.MethodDeleteLink, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.DeleteLinkRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		if err := s.DeleteLink(ctx, req.ID); err != nil {
			return nil, err
		}
		return proto.DeleteLinkResponse{}, nil
	})

	srv.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		resp, err := s.Search(ctx, req.Query, int(req.Limit))
		if err != nil {
			return nil, err
		}
		return SearchToProto(resp), nil
	})

	srv.Register(proto.MethodCommit, func(ctx context.Context, _ json.RawMessage) (any, error) {
		gen, docs, err := s.Commit(ctx)
		if err != nil {
			return nil, err
		}
		return proto.CommitResponse{Generation: gen, Docs: int64(docs)}, nil
	})
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "decoding params")
	}
	return nil
}
