package stats

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
	TERABYTE

	scanMetricsPrefix = "hdscan_"
)

// EnableStatistics enables go routine that periodically prints memory usage
// of the go process and scan statistics. Once the context is done, the
// default prometheus metrics are dumped to the given file, if any.
func EnableStatistics(ctx context.Context, interval time.Duration, dumpFile string) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
				if err := PrintScanStatistics(); err != nil {
					log.WithError(err).Warn("failed to gather scan statistics")
				}
			case <-ctx.Done():
				if len(dumpFile) <= 0 {
					return
				}
				if err := DumpPrometheusDefaults(dumpFile); err != nil {
					fmt.Println(err)
				}
				return
			}
		}
	}()
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / GIGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	bytesTotalAllocated := memStats.TotalAlloc
	bytesHeapAllocated := memStats.HeapAlloc
	countMalloc := memStats.Mallocs
	countFrees := memStats.Frees

	log.Infof(
		"Total allocated: %.3fGB, Heap allocated: %.3fGB, "+
			"Allocated objects count: %v, Freed objects count: %v",
		toGigabytes(bytesTotalAllocated),
		toGigabytes(bytesHeapAllocated),
		countMalloc,
		countFrees,
	)
}

// PrintScanStatistics logs the value of every scan metric registered in the
// default prometheus registry.
func PrintScanStatistics() error {
	lines, err := ScanStatistics()
	if err != nil {
		return err
	}
	for _, line := range lines {
		log.Info(line)
	}
	return nil
}

// ScanStatistics returns a line for every labelled value of the scan metrics.
// Histograms are reported with their count and sum.
func ScanStatistics() ([]string, error) {
	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0)
	for _, mf := range metricFamily {
		if !strings.HasPrefix(mf.GetName(), scanMetricsPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", l.GetName(), l.GetValue()))
			}
			name := fmt.Sprintf("%s{%s}", mf.GetName(), strings.Join(labels, ","))

			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %v", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %v", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf(
					"%s count=%d sum=%.3fs", name, h.GetSampleCount(), h.GetSampleSum(),
				))
			}
		}
	}
	return lines, nil
}

// DumpPrometheusDefaults write default Prometheus metrics to a file
func DumpPrometheusDefaults(filename string) error {
	file, err := os.OpenFile(
		filename,
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, v := range metricFamily {
		_, err := writer.WriteString(v.String() + "\n")
		if err != nil {
			return err
		}
	}

	return writer.Flush()
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("Num of go routines: %v\n", runtime.NumGoroutine())
}
