package links

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCSurface(t *testing.T) {
	s, _ := newService(t, testConfig)
	srv := grpc.NewServer()
	RegisterRPC(srv, s)
	assert.Equal(t, 5, srv.MethodCount())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	defer func() {
		srv.Stop()
		<-done
	}()

	ctx := context.Background()
	c, err := grpc.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	var link proto.Link
	require.NoError(t, c.Call(ctx, proto.MethodAddLink,
		proto.AddLinkRequest{URL: "https://go.dev", Description: "the go site", Tags: []string{"go"}}, &link))
	assert.NotEmpty(t, link.ID)

	var list proto.ListLinksResponse
	require.NoError(t, c.Call(ctx, proto.MethodListLinks, proto.ListLinksRequest{}, &list))
	assert.Len(t, list.Data, 1)

	var found proto.SearchResponse
	require.NoError(t, c.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: "go", Limit: 5}, &found))
	require.Len(t, found.Results, 1)
	assert.Equal(t, link.ID, found.Results[0].ID)

	var committed proto.CommitResponse
	require.NoError(t, c.Call(ctx, proto.MethodCommit, proto.CommitRequest{}, &committed))
	assert.Equal(t, int64(1), committed.Docs)

	require.NoError(t, c.Call(ctx, proto.MethodDeleteLink, proto.DeleteLinkRequest{ID: link.ID}, nil))
	err = c.Call(ctx, proto.MethodDeleteLink, proto.DeleteLinkRequest{ID: link.ID}, nil)
	var rpcErr *grpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 404, rpcErr.Code)

	err = c.Call(ctx, proto.MethodAddLink, proto.AddLinkRequest{}, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 400, rpcErr.Code)
}
