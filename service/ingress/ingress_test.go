package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"PPKitchen/service/gateway"
	"PPKitchen/service/natsx"
	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	targets []gateway.Target
	events  []gateway.Event
	result  gateway.DispatchResult
}

func (r *recordingDispatcher) Dispatch(t gateway.Target, ev gateway.Event) (gateway.DispatchResult, error) {
	r.targets = append(r.targets, t)
	r.events = append(r.events, ev)
	return r.result, nil
}

const stepEnvelope = `{"id":"evt-1","target":{"kind":"topic","value":"session:42"},"event":{"type":"step_updated","payload":{"stepNumber":3}}}`

func TestHandleDispatchesTypedEvent(t *testing.T) {
	d := &recordingDispatcher{result: gateway.DispatchResult{Matched: 2, Delivered: 2}}
	in := New(d, nil, nil)

	res, err := in.Handle(SourceNATS, []byte(stepEnvelope))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)

	require.Len(t, d.targets, 1)
	assert.Equal(t, gateway.ByTopic(topic.Topic{Resource: topic.Session, ID: "42"}), d.targets[0])
	assert.Equal(t, gateway.StepUpdated{StepNumber: 3}, d.events[0].Payload())
}

func TestHandleRejectsBadEnvelopes(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"not json":       {`{`, errs.ErrInvalidEventPayload},
		"unknown field":  {`{"target":{"kind":"broadcast"},"event":{"type":"notification","payload":{"title":"x"}},"extra":1}`, errs.ErrInvalidEventPayload},
		"bad target":     {`{"target":{"kind":"planet"},"event":{"type":"notification","payload":{"title":"x"}}}`, errs.ErrInvalidTarget},
		"unknown event":  {`{"target":{"kind":"broadcast"},"event":{"type":"recipe_liked","payload":{}}}`, errs.ErrUnknownEvent},
		"fractional num": {`{"target":{"kind":"broadcast"},"event":{"type":"step_updated","payload":{"stepNumber":2.5}}}`, errs.ErrInvalidEventPayload},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := &recordingDispatcher{}
			_, err := New(d, nil, nil).Handle(SourceKafka, []byte(tc.raw))
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, d.targets)
		})
	}
}

func TestHTTPHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := &recordingDispatcher{result: gateway.DispatchResult{Matched: 1, Delivered: 1}}
	r := gin.New()
	r.POST("/internal/dispatch", New(d, nil, nil).HTTPHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/dispatch", strings.NewReader(stepEnvelope)))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"matched":1,"delivered":1,"dropped":0}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/dispatch",
		strings.NewReader(`{"target":{"kind":"user"},"event":{"type":"notification","payload":{"title":"x"}}}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errs.CodeInvalidTarget, body.Code)
	assert.Contains(t, body.Msg, "invalid target")
}

func TestHTTPHandlerEndToEnd(t *testing.T) {
	g := gateway.New(nil, gateway.AllowAll, gateway.Options{})
	in := New(g, nil, nil)
	r := gin.New()
	r.POST("/internal/dispatch", in.HTTPHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/dispatch",
		strings.NewReader(`{"target":{"kind":"broadcast"},"event":{"type":"notification","payload":{"title":"hello"}}}`)))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"matched":0,"delivered":0,"dropped":0}`, w.Body.String())
}

func TestBusHandlers(t *testing.T) {
	d := &recordingDispatcher{}
	in := New(d, nil, nil)

	require.NoError(t, in.NatsHandler()(context.Background(), natsx.NatsxMessage{Subject: "kitchen.events", Data: []byte(stepEnvelope)}))
	require.NoError(t, in.KafkaHandler()(context.Background(), []byte(stepEnvelope)))
	assert.Len(t, d.events, 2)

	err := in.NatsHandler()(context.Background(), natsx.NatsxMessage{Data: []byte(`nope`)})
	assert.True(t, errors.Is(err, errs.ErrInvalidEventPayload))
}

func TestHTTPHandlerBodyErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := &recordingDispatcher{}
	r := gin.New()
	r.POST("/internal/dispatch", New(d, nil, nil).HTTPHandler)

	w := httptest.NewRecorder()
	big := strings.NewReader(strings.Repeat("x", maxEnvelopeBytes+1))
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/dispatch", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/dispatch", iotest.ErrReader(errors.New("connection reset"))))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errs.CodeInvalidEventPayload, body.Code)
	assert.Contains(t, body.Msg, "connection reset")
	assert.Empty(t, d.events)
}

func TestDedupeByEnvelopeID(t *testing.T) {
	d := &recordingDispatcher{result: gateway.DispatchResult{Matched: 1, Delivered: 1}}
	in := New(d, nil, nil).Dedupe(natsx.NewMemIdem(16, time.Minute))

	res, err := in.Handle(SourceHTTP, []byte(stepEnvelope))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	require.NoError(t, in.KafkaHandler()(context.Background(), []byte(stepEnvelope)))
	res, err = in.Handle(SourceNATS, []byte(stepEnvelope))
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Len(t, d.events, 1)

	anon := `{"target":{"kind":"broadcast"},"event":{"type":"notification","payload":{"title":"x"}}}`
	_, err = in.Handle(SourceHTTP, []byte(anon))
	require.NoError(t, err)
	_, err = in.Handle(SourceHTTP, []byte(anon))
	require.NoError(t, err)
	assert.Len(t, d.events, 3)
}
