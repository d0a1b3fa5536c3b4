package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/links"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAdder struct{ mock.Mock }

func (m *mockAdder) AddLink(ctx context.Context, url, description string, tags []string) (links.Link, error) {
	args := m.Called(ctx, url, description, tags)
	return args.Get(0).(links.Link), args.Error(1)
}

func (m *mockAdder) Commit(ctx context.Context) (uint64, int, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Int(1), args.Error(2)
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func encode(t *testing.T, e proto.IngestEvent) []byte {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

func outcome(m *metrics.Metrics, o string) float64 {
	return testutil.ToFloat64(m.IngestMessagesTotal.WithLabelValues(o))
}

func TestHandleMessageAddsLink(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := &mockAdder{}
	svc.On("AddLink", mock.Anything, "https://go.dev", "go", []string{"lang"}).
		Return(links.Link{ID: "1", URL: "https://go.dev"}, nil).Once()

	h := HandleMessage(svc, m, fastRetry)
	err := h(context.Background(), nil, encode(t, proto.IngestEvent{URL: "https://go.dev", Description: "go", Tags: []string{"lang"}}))
	require.NoError(t, err)
	svc.AssertExpectations(t)
	assert.Equal(t, 1.0, outcome(m, OutcomeIndexed))
}

func TestHandleMessageSkipsBadInput(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := &mockAdder{}
	svc.On("AddLink", mock.Anything, "", "", []string(nil)).
		Return(links.Link{}, apperrors.Wrap(apperrors.ErrInvalidInput, nil, "url is required")).Once()

	h := HandleMessage(svc, m, fastRetry)
	assert.NoError(t, h(context.Background(), []byte("k"), []byte("{not json")))
	assert.NoError(t, h(context.Background(), nil, encode(t, proto.IngestEvent{})))

	svc.AssertNumberOfCalls(t, "AddLink", 1)
	assert.Equal(t, 1.0, outcome(m, OutcomeMalformed))
	assert.Equal(t, 1.0, outcome(m, OutcomeRejected))
}

func TestHandleMessageRetriesTransientFailure(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := &mockAdder{}
	svc.On("AddLink", mock.Anything, "https://a.test", "", []string(nil)).
		Return(links.Link{}, errors.New("store hiccup")).Once()
	svc.On("AddLink", mock.Anything, "https://a.test", "", []string(nil)).
		Return(links.Link{ID: "a"}, nil).Once()

	h := HandleMessage(svc, m, fastRetry)
	require.NoError(t, h(context.Background(), nil, encode(t, proto.IngestEvent{URL: "https://a.test"})))
	svc.AssertNumberOfCalls(t, "AddLink", 2)
	assert.Equal(t, 1.0, outcome(m, OutcomeIndexed))
}

func TestHandleMessageRetriesOnlyCommitOnceCatalogued(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := &mockAdder{}
	commitErr := apperrors.Wrap(apperrors.ErrCommit, errors.New("disk full"), "writing segment")
	svc.On("AddLink", mock.Anything, "https://b.test", "", []string(nil)).
		Return(links.Link{ID: "b"}, commitErr).Once()
	svc.On("Commit", mock.Anything).Return(uint64(0), 0, commitErr)

	h := HandleMessage(svc, m, fastRetry)
	require.NoError(t, h(context.Background(), nil, encode(t, proto.IngestEvent{URL: "https://b.test"})))
	svc.AssertNumberOfCalls(t, "AddLink", 1)
	svc.AssertNumberOfCalls(t, "Commit", 2)
	assert.Equal(t, 1.0, outcome(m, OutcomeBuffered))
}

func TestHandleMessageReportsPersistentFailure(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := &mockAdder{}
	svc.On("AddLink", mock.Anything, "https://c.test", "", []string(nil)).
		Return(links.Link{}, errors.New("index closed"))

	h := HandleMessage(svc, m, fastRetry)
	err := h(context.Background(), nil, encode(t, proto.IngestEvent{URL: "https://c.test"}))
	require.Error(t, err)
	svc.AssertNumberOfCalls(t, "AddLink", 3)
	assert.Equal(t, 1.0, outcome(m, OutcomeFailed))
}
