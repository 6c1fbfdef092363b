package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sensorhub/internal/config"
	"sensorhub/internal/replay"
	"sensorhub/internal/sensor"
)

const baseConfig = `
sensors:
  - type: accelerometer
    scale: [0.00239420166015625]
    sample_period: 20ms
system:
  background_interval: 1ms
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParse(t *testing.T, yml string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yml))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func TestRun_SimWalkRecordsAndReports(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "walk.log")
	cfg := mustParse(t, baseConfig+"source:\n  sim:\n    start_tick: 4294963200\nrecord:\n  enable: true\n  path: "+logPath+"\n")

	var out bytes.Buffer
	if err := run(context.Background(), cfg, discardLogger(), &out, true); err != nil {
		t.Fatalf("run: %v", err)
	}

	var rep struct {
		RunID           string    `json:"run_id"`
		Readings        uint64    `json:"readings"`
		Steps           uint64    `json:"steps"`
		Walks           int       `json:"walks"`
		CadenceHz       float64   `json:"cadence_hz"`
		MotionEventsSec []float64 `json:"motion_events_sec"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("report json: %v\n%s", err, out.String())
	}
	if rep.Readings != 700 || rep.Walks != 1 || len(rep.MotionEventsSec) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Steps < 17 || rep.Steps > 19 {
		t.Fatalf("steps=%d want 18±1", rep.Steps)
	}
	if rep.CadenceHz < 1.5 || rep.CadenceHz > 2.1 {
		t.Fatalf("cadence=%f", rep.CadenceHz)
	}

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if !strings.HasPrefix(string(b), "# run "+rep.RunID+"\n") {
		t.Fatalf("recording header: %q", strings.SplitN(string(b), "\n", 2)[0])
	}
	recs, err := replay.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s := summarizeSampleLog(recs)
	if s.Readings != 700 || s.Segments != 1 || s.TickWraps != 1 {
		t.Fatalf("recording summary: %+v", s)
	}
}

func TestRun_ReplaySourceTextReport(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "in.log")
	w, err := replay.CreateWriter(logPath)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	now := time.Now()
	for i := 0; i < 10; i++ {
		r := sensor.Reading{Type: sensor.TypeAccelerometer, Raw: sensor.RawSample{Axes: [3]int32{0, 0, 4096}, Ticks: uint32(20 * i)}}
		if err := w.WriteReading(now.Add(time.Duration(i)*20*time.Millisecond), r); err != nil {
			t.Fatalf("WriteReading: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg := mustParse(t, baseConfig+"source:\n  kind: replay\n  replay:\n    path: "+logPath+"\n    speed: 100\n")
	var out bytes.Buffer
	if err := run(context.Background(), cfg, discardLogger(), &out, false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), ": 10 readings in ") || !strings.Contains(out.String(), "steps: 0 in 0 walk(s), 0 segments") {
		t.Fatalf("report:\n%s", out.String())
	}
}

func TestBuildSource_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.log")
	cases := []string{
		"source:\n  kind: replay\n  replay:\n    path: " + missing + "\n",
		"source:\n  sim:\n    scenario: " + missing + "\n",
		"source:\n  kind: modbus\n  modbus:\n    mode: tcp\n    address: 127.0.0.1:1\n    timeout: 50ms\n",
	}
	for _, c := range cases {
		cfg := mustParse(t, baseConfig+c)
		if _, _, err := buildSource(cfg, discardLogger()); err == nil {
			t.Fatalf("expected error for:\n%s", c)
		}
	}
}

func TestSamplePeriod(t *testing.T) {
	cfg := mustParse(t, `
sensors:
  - type: accelerometer
    scale: [0.0024]
  - type: gyroscope
    scale: [0.0001]
    sample_period: 5ms
`)
	if got := samplePeriod(cfg, sensor.TypeGyroscope); got != 5*time.Millisecond {
		t.Fatalf("gyro period=%s", got)
	}
	if got := samplePeriod(cfg, sensor.TypeMagnetometer); got != 20*time.Millisecond {
		t.Fatalf("mag period=%s", got)
	}
}

func TestSummarizeSampleLog(t *testing.T) {
	in := `# header
START
0,accel,100,0,0,0
20000000,accel,120,0,0,0
20000000,gyro,4294967290,0,0,0
40000000,gyro,14,0,0,0
START
5000000,mag,0,0,0,0
`
	recs, err := replay.NewReader(strings.NewReader(in)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	s := summarizeSampleLog(recs)
	if s.Segments != 2 || s.Readings != 5 || s.TickWraps != 1 {
		t.Fatalf("summary: %+v", s)
	}
	if s.MaxDuration != 40*time.Millisecond {
		t.Fatalf("MaxDuration=%s", s.MaxDuration)
	}
	if s.Counts[sensor.TypeAccelerometer] != 2 || s.Counts[sensor.TypeGyroscope] != 2 || s.Counts[sensor.TypeMagnetometer] != 1 {
		t.Fatalf("counts: %v", s.Counts)
	}

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(path, []byte(in), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := printLogSummary(&buf, path); err != nil {
		t.Fatalf("printLogSummary: %v", err)
	}
	if !strings.Contains(buf.String(), "  gyroscope: 2\n") {
		t.Fatalf("output:\n%s", buf.String())
	}
	if err := printLogSummary(&buf, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
