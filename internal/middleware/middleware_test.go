package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLoggingCarriesRiderAndErrorCode(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logging(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/trips/current", func(c *gin.Context) {
		SetRider(c, "R1")
		SetErrorCode(c, "NOT_FOUND")
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND"})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trips/current", nil))

	var line struct {
		Level     string `json:"level"`
		Msg       string `json:"msg"`
		RiderID   string `json:"rider_id"`
		ErrorCode string `json:"error_code"`
		Status    int    `json:"status"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	if line.Level != "WARN" || line.Msg != "request completed" || line.RiderID != "R1" ||
		line.ErrorCode != "NOT_FOUND" || line.Status != http.StatusNotFound {
		t.Errorf("unexpected log line: %s", buf.String())
	}
}

func TestGetLoggerOutsideRequest(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetLogger(c) != slog.Default() {
		t.Errorf("expected the default logger")
	}
}

func TestMetricsLabelErrorsByCode(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(prometheus.NewRegistry()))
	r.POST("/reservations/:bikeId/claim", func(c *gin.Context) {
		SetErrorCode(c, "EXPIRED")
		c.JSON(http.StatusGone, gin.H{"code": "EXPIRED"})
	})

	expired := httpRequestErrorsTotal.WithLabelValues(http.MethodPost, "/reservations/:bikeId/claim", "410", "EXPIRED")
	before := testutil.ToFloat64(expired)
	for _, bike := range []string{"B1", "B2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/reservations/"+bike+"/claim", nil))
	}
	if got := testutil.ToFloat64(expired) - before; got != 2 {
		t.Errorf("expected 2 EXPIRED errors on the route pattern, got %v", got)
	}
}
