package serialsrc

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sensorhub/internal/sensor"
)

type fakePort struct {
	io.Reader
	closed bool
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

// blockingPort blocks reads until closed.
type blockingPort struct {
	closed chan struct{}
}

func (b *blockingPort) Read([]byte) (int, error) {
	<-b.closed
	return 0, errors.New("port closed")
}

func (b *blockingPort) Close() error {
	close(b.closed)
	return nil
}

func TestSource_ParsesLinesAndSkipsNoise(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader(`# mcu boot
START
0,accel,100,1,2,4096

20000000,gyro,120,-5,0,5
garbage
20000000,accel,120,1,2
`)}
	var bad []string
	src := &Source{Port: port, OnBadLine: func(line string, err error) { bad = append(bad, line) }}

	var got []sensor.Reading
	err := src.Run(context.Background(), func(r sensor.Reading) error {
		got = append(got, r)
		return nil
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Run err=%v want io.EOF", err)
	}

	want := []sensor.Reading{
		{Type: sensor.TypeAccelerometer, Raw: sensor.RawSample{Axes: [3]int32{1, 2, 4096}, Ticks: 100}},
		{Type: sensor.TypeGyroscope, Raw: sensor.RawSample{Axes: [3]int32{-5, 0, 5}, Ticks: 120}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("readings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"garbage", "20000000,accel,120,1,2"}, bad); diff != "" {
		t.Fatalf("bad lines mismatch (-want +got):\n%s", diff)
	}
	if src.BadLines() != 2 {
		t.Fatalf("BadLines=%d want 2", src.BadLines())
	}
}

func TestSource_EmitErrorStops(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("0,accel,1,0,0,0\n0,accel,2,0,0,0\n")}
	stop := errors.New("stop")
	n := 0
	err := (&Source{Port: port}).Run(context.Background(), func(sensor.Reading) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d want stop after 1", err, n)
	}
}

func TestSource_CancelClosesPort(t *testing.T) {
	port := &blockingPort{closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&Source{Port: port}).Run(ctx, func(sensor.Reading) error { return nil })
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v want context.Canceled", err)
	}
}

func TestOpen_InvalidBaud(t *testing.T) {
	if _, err := Open("/dev/null", 0); err == nil {
		t.Fatalf("expected error")
	}
}
