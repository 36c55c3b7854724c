package edge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingRecorder map[string]float64

func (c countingRecorder) Add(name string, value float64) { c[name] += value }

func TestRewrite(t *testing.T) {
	r := NewRouter(WithVersions("/react", "/lit"), WithPicker(func(int) int { return 1 }))

	cases := []struct {
		uri    string
		want   string
		metric string
	}{
		{"/", "/lit/index.html", MetricRouteRandomized},
		{"/react", "/react/index.html", MetricVersionIndexRewrite},
		{"/react/", "/react/index.html", MetricVersionIndexRewrite},
		{"/react/assets/app.js", "/react/assets/app.js", MetricVersionFileRequest},
		{"/reactive", "/reactive", MetricUnknownPathRequest},
		{"/favicon.ico", "/favicon.ico", MetricUnknownPathRequest},
	}
	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			rec := countingRecorder{}
			require.Equal(t, tc.want, r.Rewrite(tc.uri, rec))
			require.Equal(t, 1.0, rec[tc.metric])
		})
	}
}

func TestHandleReturnsRewrittenRequest(t *testing.T) {
	r := NewRouter()
	event := ViewerRequestEvent{Records: []Record{{}}}
	event.Records[0].CF.Request = Request{Method: "GET", URI: "/", ClientIP: "203.0.113.178"}

	rec := countingRecorder{}
	out, err := r.Handle(event, rec)
	require.NoError(t, err)
	require.Equal(t, "/react/index.html", out.URI)
	require.Equal(t, "203.0.113.178", out.ClientIP)
	require.Equal(t, 1.0, rec[MetricInvocationCount])
}

func TestHandleWithoutRecords(t *testing.T) {
	_, err := NewRouter().Handle(ViewerRequestEvent{}, nil)
	require.ErrorIs(t, err, ErrNoRecords)
}
