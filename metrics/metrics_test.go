package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveToken(t *testing.T) {
	before := testutil.ToFloat64(TokenRequests.WithLabelValues("refresh_token", "error"))
	ObserveToken("refresh_token", errors.New("boom"))
	after := testutil.ToFloat64(TokenRequests.WithLabelValues("refresh_token", "error"))
	if after-before != 1 {
		t.Errorf("have(%v) want(1) error increments", after-before)
	}
}

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequests.WithLabelValues("query", "200"))
	ObserveUpstream("query", 200, time.Now())
	after := testutil.ToFloat64(UpstreamRequests.WithLabelValues("query", "200"))
	if after-before != 1 {
		t.Errorf("have(%v) want(1) increments", after-before)
	}

	before = testutil.ToFloat64(UpstreamRequests.WithLabelValues("bill", "error"))
	ObserveUpstream("bill", 0, time.Now())
	after = testutil.ToFloat64(UpstreamRequests.WithLabelValues("bill", "error"))
	if after-before != 1 {
		t.Errorf("have(%v) want(1) transport error increments", after-before)
	}
}
