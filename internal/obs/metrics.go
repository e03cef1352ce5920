package obs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP metrics collectors.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
	} else {
		sort.Float64s(buckets)
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	m.ReqTotal = registerCounterVec(reg, m.ReqTotal)
	m.ReqDur = registerHistogramVec(reg, m.ReqDur)
	m.InFlight = registerGauge(reg, m.InFlight)
	return m
}

var (
	domainOnce sync.Once

	// BillExportTotal counts invoice PDF export outcomes.
	BillExportTotal *prometheus.CounterVec
	// StockReportTotal counts generated stock report PDFs.
	StockReportTotal prometheus.Counter
	// OTPIssuedTotal counts OTP codes generated for registration and resends.
	OTPIssuedTotal *prometheus.CounterVec
	// SerialAllocatedTotal counts invoice serial numbers handed out.
	SerialAllocatedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillExportTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_export_total",
			Help:      "Count of invoice PDF export outcomes.",
		}, []string{"result"}))
		StockReportTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_report_total",
			Help:      "Number of stock report PDFs generated.",
		}))
		OTPIssuedTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "Count of one-time passwords issued by reason.",
		}, []string{"reason"}))
		SerialAllocatedTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_serial_allocated_total",
			Help:      "Number of invoice serial numbers allocated.",
		}))
	})
}

// IncOTPIssued records an issued OTP; no-op before metric registration.
func IncOTPIssued(reason string) {
	if OTPIssuedTotal != nil {
		OTPIssuedTotal.WithLabelValues(reason).Inc()
	}
}

// IncBillExport records an invoice PDF export outcome; no-op before metric registration.
func IncBillExport(result string) {
	if BillExportTotal != nil {
		BillExportTotal.WithLabelValues(result).Inc()
	}
}

// IncStockReport records a generated stock report; no-op before metric registration.
func IncStockReport() {
	if StockReportTotal != nil {
		StockReportTotal.Inc()
	}
}

// IncSerialAllocated records an allocated invoice serial; no-op before metric registration.
func IncSerialAllocated() {
	if SerialAllocatedTotal != nil {
		SerialAllocatedTotal.Inc()
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if existing, ok := alreadyRegistered(reg, c); ok {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			return v
		}
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if existing, ok := alreadyRegistered(reg, h); ok {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			return v
		}
	}
	return h
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) prometheus.Gauge {
	if existing, ok := alreadyRegistered(reg, g); ok {
		if v, ok := existing.(prometheus.Gauge); ok {
			return v
		}
	}
	return g
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if existing, ok := alreadyRegistered(reg, c); ok {
		if v, ok := existing.(prometheus.Counter); ok {
			return v
		}
	}
	return c
}

// alreadyRegistered registers the collector, returning the previously registered
// instance when a duplicate registration is attempted (test re-runs, multiple mains).
func alreadyRegistered(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, bool) {
	err := reg.Register(c)
	if err == nil {
		return nil, false
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, true
	}
	panic(err)
}

// ParseBucketsCSV converts a comma-separated list of bucket boundaries (milliseconds) into floats.
func ParseBucketsCSV(csv string) []float64 {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
